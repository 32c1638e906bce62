package sqltoken

import "strings"

// Reserved words recognized as Keyword tokens. Type names and function names
// stay identifiers so that formatting lowercases them with other names.
var keywords = map[string]struct{}{}

func init() {
	for _, word := range strings.Fields(`
		ADD ALL ALTER AND ANY AS ASC BEGIN BETWEEN BY CALL CASE CAST CHECK
		COLUMN COMMIT CONSTRAINT CREATE CROSS DATABASE DEFAULT DELETE DESC
		DESCRIBE DISTINCT DROP ELSE END EXCEPT EXISTS EXPLAIN FALSE FETCH
		FIRST FOREIGN FROM FULL GRANT GROUP HAVING IF ILIKE IN INDEX INNER
		INSERT INTERSECT INTO IS JOIN KEY LATERAL LEFT LIKE LIMIT MERGE
		NATURAL NEXT NOT NULL OFFSET ON ONLY OR ORDER OUTER OVER PARTITION
		PRIMARY RECURSIVE REFERENCES REPLACE RETURNING REVOKE RIGHT ROLLBACK
		SCHEMA SELECT SET SHOW TABLE TEMP TEMPORARY THEN TRUE TRUNCATE UNION
		UNIQUE UPDATE USE USING VALUES VIEW WHEN WHERE WINDOW WITH
	`) {
		keywords[word] = struct{}{}
	}
}

// IsKeyword reports whether word is a reserved word, ignoring case.
func IsKeyword(word string) bool {
	_, ok := keywords[strings.ToUpper(word)]
	return ok
}
