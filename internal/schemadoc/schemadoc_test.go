package schemadoc

import (
	"strings"
	"testing"

	"github.com/duckmesh/schemagate/internal/ddl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTables() []ddl.TableSchema {
	return []ddl.TableSchema{
		{
			Name: "users",
			Columns: []ddl.Column{
				{Name: "id", DataType: "INT", Constraints: []ddl.Constraint{ddl.PrimaryKey, ddl.AutoIncrement}},
				{Name: "email", DataType: "VARCHAR(255)", Constraints: []ddl.Constraint{ddl.NotNull, ddl.Unique}, Comment: "login address"},
			},
			PrimaryKeys: []string{"id"},
			Comment:     "registered accounts",
		},
		{
			Name:    "events",
			Columns: []ddl.Column{{Name: "payload", DataType: "jsonb"}},
		},
	}
}

func TestDocuments(t *testing.T) {
	docs := Documents("src-1", sampleTables())
	require.Len(t, docs, 5)

	assert.Equal(t, Document{
		ID:       "src-1:table:users",
		SourceID: "src-1",
		Kind:     KindTable,
		Table:    "users",
		Body:     "Table: users | Columns: 2 | Fields: id, email | Primary key: id | Comment: registered accounts",
	}, docs[0])
	assert.Equal(t, "src-1:column:users.email", docs[2].ID)
	assert.Equal(t, "email", docs[2].Column)
	assert.Equal(t, "Table: users | Column: email | Type: VARCHAR(255) | Constraints: NOT NULL, UNIQUE | Comment: login address", docs[2].Body)

	assert.Equal(t, "Table: events | Columns: 1 | Fields: payload", docs[3].Body)
	assert.Equal(t, "Table: events | Column: payload | Type: jsonb", docs[4].Body)
}

func TestRenderText(t *testing.T) {
	var b strings.Builder
	require.NoError(t, RenderText(&b, sampleTables()))

	want := "TABLE users (PK: id) -- registered accounts\n" +
		"  id: INT PRIMARY KEY AUTO_INCREMENT\n" +
		"  email: VARCHAR(255) NOT NULL UNIQUE -- login address\n" +
		"\n" +
		"TABLE events\n" +
		"  payload: jsonb\n"
	assert.Equal(t, want, b.String())
}

func TestRenderMarkdown(t *testing.T) {
	out := RenderString(FormatMarkdown, sampleTables())

	assert.True(t, strings.HasPrefix(out, "# Database Schema\n\n## users\n\nregistered accounts\n\n### Columns\n\n"))
	assert.Contains(t, out, "- **id:** INT, PK, AUTO_INCREMENT\n")
	assert.Contains(t, out, "- **email:** VARCHAR(255), NOT NULL, UNIQUE (login address)\n")
	assert.Contains(t, out, "## events\n\n### Columns\n\n- **payload:** jsonb\n")
}

func TestParseFormat(t *testing.T) {
	for raw, want := range map[string]Format{"": FormatText, "TEXT": FormatText, "md": FormatMarkdown, "markdown": FormatMarkdown} {
		got, err := ParseFormat(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("html")
	assert.Error(t, err)
}

func TestDocumentsSkipsRepeatedColumn(t *testing.T) {
	docs := Documents("src-1", []ddl.TableSchema{{
		Name:    "t",
		Columns: []ddl.Column{{Name: "a", DataType: "INT"}, {Name: "a", DataType: "TEXT"}},
	}})
	require.Len(t, docs, 2)
	assert.Equal(t, "Table: t | Column: a | Type: INT", docs[1].Body)
}
