// Package indexer turns pending DDL sources into indexed tables and
// documents.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/duckmesh/schemagate/internal/catalog"
	"github.com/duckmesh/schemagate/internal/ddl"
	"github.com/duckmesh/schemagate/internal/observability"
	"github.com/duckmesh/schemagate/internal/schemadoc"
	"github.com/duckmesh/schemagate/internal/storage"
)

// MessageNoTables is stored on sources whose DDL produced no table.
const MessageNoTables = "no table structures could be parsed; check the DDL format"

const maxErrorMessageLen = 1000

type Service struct {
	Queue       Queue
	ObjectStore storage.ObjectStore
	Config      Config
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Queue is the catalog side of indexing: leasing pending sources and
// recording the outcome.
type Queue interface {
	ClaimSources(ctx context.Context, consumerID string, limit int, leaseSeconds int) ([]catalog.Source, error)
	ReplaceSourceIndex(ctx context.Context, in catalog.ReplaceSourceIndexInput) error
	FailLeasedSource(ctx context.Context, sourceID, leaseOwner, message string) error
}

type Config struct {
	ConsumerID     string
	ClaimLimit     int
	LeaseSeconds   int
	PollInterval   time.Duration
	Workers        int
	MaxSourceBytes int64
}

// Summary counts the outcome of one ProcessOnce cycle.
type Summary struct {
	Claimed int
	Ready   int
	Failed  int
}

func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	ticker := time.NewTicker(s.Config.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := s.ProcessOnce(ctx); err != nil {
			if s.Logger != nil {
				s.Logger.ErrorContext(ctx, "indexer process cycle failed", slog.Any("error", err))
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessOnce claims a batch of sources and indexes them concurrently. A
// source that cannot be parsed is marked as failed; only catalog failures
// while claiming or recording an outcome are returned.
func (s *Service) ProcessOnce(ctx context.Context) (Summary, error) {
	s.ensureDefaults()
	sources, err := s.Queue.ClaimSources(ctx, s.Config.ConsumerID, s.Config.ClaimLimit, s.Config.LeaseSeconds)
	if err != nil {
		return Summary{}, fmt.Errorf("claim sources: %w", err)
	}
	summary := Summary{Claimed: len(sources)}
	if len(sources) == 0 {
		return summary, nil
	}

	var mu sync.Mutex
	var group errgroup.Group
	group.SetLimit(s.Config.Workers)
	for _, source := range sources {
		group.Go(func() error {
			ready, err := s.indexSource(ctx, source)
			mu.Lock()
			defer mu.Unlock()
			if ready {
				summary.Ready++
			} else {
				summary.Failed++
			}
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Config.ClaimLimit <= 0 {
		s.Config.ClaimLimit = 10
	}
	if s.Config.LeaseSeconds <= 0 {
		s.Config.LeaseSeconds = 60
	}
	if s.Config.PollInterval <= 0 {
		s.Config.PollInterval = time.Second
	}
	if s.Config.Workers <= 0 {
		s.Config.Workers = 4
	}
	if s.Config.ConsumerID == "" {
		s.Config.ConsumerID = "schemagate-indexer"
	}
}

// indexSource reports whether the source became ready. The error is non-nil
// only when the outcome could not be recorded.
func (s *Service) indexSource(ctx context.Context, source catalog.Source) (bool, error) {
	started := s.Clock()
	logger := s.logger().With(
		slog.String("tenant_id", source.TenantID),
		slog.String("source_id", source.SourceID),
	)

	input, err := s.buildIndex(ctx, logger, source)
	if err == nil {
		err = s.Queue.ReplaceSourceIndex(ctx, input)
		if err != nil {
			err = fmt.Errorf("replace source index: %w", err)
		}
	}
	elapsed := s.Clock().Sub(started)

	if errors.Is(err, catalog.ErrLeaseLost) {
		logger.WarnContext(ctx, "source lease lost before indexing finished", slog.Duration("elapsed", elapsed))
		return false, nil
	}
	if err != nil {
		observability.ObserveIndexedSource(string(catalog.SourceError), elapsed)
		message := failureMessage(err)
		logger.WarnContext(ctx, "source indexing failed", slog.String("reason", message), slog.Any("error", err))
		markErr := s.Queue.FailLeasedSource(ctx, source.SourceID, s.Config.ConsumerID, message)
		if errors.Is(markErr, catalog.ErrLeaseLost) {
			logger.WarnContext(ctx, "source lease lost before failure was recorded")
			return false, nil
		}
		if markErr != nil {
			return false, fmt.Errorf("mark source %s failed: %w", source.SourceID, markErr)
		}
		return false, nil
	}

	observability.ObserveIndexedSource(string(catalog.SourceReady), elapsed)
	logger.InfoContext(ctx, "source indexed",
		slog.String("filename", source.Filename),
		slog.Int("tables", len(input.Tables)),
		slog.Int("columns", input.ColumnCount()),
		slog.Int("documents", len(input.Documents)),
		slog.Duration("elapsed", elapsed),
	)
	return true, nil
}

func (s *Service) buildIndex(ctx context.Context, logger *slog.Logger, source catalog.Source) (catalog.ReplaceSourceIndexInput, error) {
	body, err := storage.ReadAll(ctx, s.ObjectStore, source.ObjectPath, s.Config.MaxSourceBytes)
	if err != nil {
		return catalog.ReplaceSourceIndexInput{}, fmt.Errorf("read source object %s: %w", source.ObjectPath, err)
	}

	extraction, err := ddl.Extractor{Logger: logger}.ExtractDetailed(string(body))
	if err != nil {
		observability.ObserveExtraction("no_tables", 0, len(extraction.Skipped))
		return catalog.ReplaceSourceIndexInput{}, err
	}
	observability.ObserveExtraction("ok", len(extraction.Tables), len(extraction.Skipped))

	tables, dropped := ddl.Dedupe(extraction.Tables)
	for _, name := range dropped {
		logger.WarnContext(ctx, "duplicate table definition ignored", slog.String("table", name))
	}

	return catalog.ReplaceSourceIndexInput{
		SourceID:   source.SourceID,
		TenantID:   source.TenantID,
		LeaseOwner: s.Config.ConsumerID,
		Tables:     tables,
		Documents:  schemadoc.Documents(source.SourceID, tables),
	}, nil
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, ddl.ErrNoTables):
		return MessageNoTables
	case errors.Is(err, storage.ErrObjectNotFound):
		return "source file is missing from object storage"
	case errors.Is(err, storage.ErrObjectTooLarge):
		return "source file exceeds the upload size limit"
	}
	message := err.Error()
	if len(message) > maxErrorMessageLen {
		n := maxErrorMessageLen
		for n > 0 && !utf8.RuneStart(message[n]) {
			n--
		}
		message = message[:n]
	}
	return message
}
