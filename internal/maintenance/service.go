// Package maintenance keeps the catalog and the object store consistent:
// it checks that every source still has its DDL object and removes failed
// sources once they have aged out.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/duckmesh/schemagate/internal/catalog"
	"github.com/duckmesh/schemagate/internal/storage"
)

// MessageMissingObject is stored on sources whose DDL object disappeared.
const MessageMissingObject = "source file is missing from object storage"

type Catalog interface {
	ListTenants(ctx context.Context) ([]catalog.Tenant, error)
	ListSources(ctx context.Context, tenantID string) ([]catalog.Source, error)
	DeleteSource(ctx context.Context, tenantID, sourceID string) (bool, error)
	MarkSourceError(ctx context.Context, sourceID, message string) error
}

type Config struct {
	IntegrityInterval time.Duration
	RetentionInterval time.Duration
	// FailedSourceTTL is how long a source in status error is kept.
	FailedSourceTTL time.Duration
	// MarkMissing flags sources whose object is gone as failed.
	MarkMissing bool
}

type Service struct {
	Catalog     Catalog
	ObjectStore storage.ObjectStore
	Config      Config
	Logger      *slog.Logger
	Clock       func() time.Time
}

type RetentionSummary struct {
	TenantsScanned   int `json:"tenants_scanned"`
	CandidateSources int `json:"candidate_sources"`
	SourcesDeleted   int `json:"sources_deleted"`
	Failures         int `json:"failures"`
}

type IntegritySummary struct {
	TenantsScanned      int `json:"tenants_scanned"`
	SourcesChecked      int `json:"sources_checked"`
	MissingObjects      int `json:"missing_objects"`
	SizeMismatches      int `json:"size_mismatches"`
	SourcesMarkedFailed int `json:"sources_marked_failed"`
	OperationalFailures int `json:"operational_failures"`
}

func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	integrityTicker := time.NewTicker(s.Config.IntegrityInterval)
	defer integrityTicker.Stop()
	retentionTicker := time.NewTicker(s.Config.RetentionInterval)
	defer retentionTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-integrityTicker.C:
			summary, err := s.RunIntegrityCheckOnce(ctx, "")
			if err != nil {
				if s.Logger != nil {
					s.Logger.ErrorContext(ctx, "integrity cycle failed", slog.Any("error", err), slog.Any("summary", summary))
				}
				continue
			}
			if s.Logger != nil {
				s.Logger.InfoContext(ctx, "integrity cycle completed", slog.Any("summary", summary))
			}
		case <-retentionTicker.C:
			summary, err := s.RunRetentionOnce(ctx, "")
			if err != nil {
				if s.Logger != nil {
					s.Logger.ErrorContext(ctx, "retention cycle failed", slog.Any("error", err), slog.Any("summary", summary))
				}
				continue
			}
			if s.Logger != nil {
				s.Logger.InfoContext(ctx, "retention cycle completed", slog.Any("summary", summary))
			}
		}
	}
}

// RunRetentionOnce deletes sources that failed more than FailedSourceTTL
// ago, object first. An empty tenantID scans every tenant.
func (s *Service) RunRetentionOnce(ctx context.Context, tenantID string) (RetentionSummary, error) {
	s.ensureDefaults()
	if s.Catalog == nil {
		return RetentionSummary{}, fmt.Errorf("catalog is required")
	}
	if s.ObjectStore == nil {
		return RetentionSummary{}, fmt.Errorf("object store is required")
	}

	tenants, err := s.listTargetTenants(ctx, tenantID)
	if err != nil {
		return RetentionSummary{}, err
	}

	summary := RetentionSummary{TenantsScanned: len(tenants)}
	failures := make([]string, 0)
	cutoff := s.Clock().Add(-s.Config.FailedSourceTTL)

	for _, tenant := range tenants {
		sources, err := s.Catalog.ListSources(ctx, tenant.TenantID)
		if err != nil {
			summary.Failures++
			failures = append(failures, fmt.Sprintf("tenant %s list sources: %v", tenant.TenantID, err))
			continue
		}

		for _, source := range sources {
			if source.Status != catalog.SourceError || !failedAt(source).Before(cutoff) {
				continue
			}
			summary.CandidateSources++

			if source.ObjectPath != "" {
				if err := s.ObjectStore.Delete(ctx, source.ObjectPath); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
					summary.Failures++
					failures = append(failures, fmt.Sprintf("tenant %s delete object %s: %v", tenant.TenantID, source.ObjectPath, err))
					continue
				}
			}
			if _, err := s.Catalog.DeleteSource(ctx, tenant.TenantID, source.SourceID); err != nil {
				summary.Failures++
				failures = append(failures, fmt.Sprintf("tenant %s delete source %s: %v", tenant.TenantID, source.SourceID, err))
				continue
			}
			summary.SourcesDeleted++
			if s.Logger != nil {
				s.Logger.InfoContext(ctx, "failed source removed",
					slog.String("tenant_id", tenant.TenantID),
					slog.String("source_id", source.SourceID),
					slog.String("filename", source.Filename),
				)
			}
		}
	}

	if summary.SourcesDeleted > 0 {
		retentionSourcesDeletedTotal.Add(float64(summary.SourcesDeleted))
	}
	if len(failures) > 0 {
		retentionRunsTotal.WithLabelValues("failed").Inc()
		return summary, fmt.Errorf("retention encountered %d failure(s): %s", len(failures), strings.Join(failures, "; "))
	}
	retentionRunsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

// RunIntegrityCheckOnce stats the object behind every source and compares
// its size with the catalog. Any missing object, size mismatch or lookup
// failure makes the run return an error alongside the summary.
func (s *Service) RunIntegrityCheckOnce(ctx context.Context, tenantID string) (IntegritySummary, error) {
	s.ensureDefaults()
	if s.Catalog == nil {
		return IntegritySummary{}, fmt.Errorf("catalog is required")
	}
	if s.ObjectStore == nil {
		return IntegritySummary{}, fmt.Errorf("object store is required")
	}

	tenants, err := s.listTargetTenants(ctx, tenantID)
	if err != nil {
		return IntegritySummary{}, err
	}
	summary := IntegritySummary{TenantsScanned: len(tenants)}
	const maxIssueSamples = 20
	issueSamples := make([]string, 0, maxIssueSamples)
	issueCount := 0
	addIssue := func(message string) {
		issueCount++
		if len(issueSamples) < maxIssueSamples {
			issueSamples = append(issueSamples, message)
		}
	}

	for _, tenant := range tenants {
		sources, err := s.Catalog.ListSources(ctx, tenant.TenantID)
		if err != nil {
			summary.OperationalFailures++
			addIssue(fmt.Sprintf("tenant %s list sources: %v", tenant.TenantID, err))
			continue
		}

		for _, source := range sources {
			summary.SourcesChecked++

			info, err := s.ObjectStore.Stat(ctx, source.ObjectPath)
			if err != nil {
				if !errors.Is(err, storage.ErrObjectNotFound) {
					summary.OperationalFailures++
					addIssue(fmt.Sprintf("tenant %s stat %s: %v", tenant.TenantID, source.ObjectPath, err))
					continue
				}
				summary.MissingObjects++
				addIssue(fmt.Sprintf("tenant %s missing object %s (source=%s)", tenant.TenantID, source.ObjectPath, source.SourceID))
				if s.Config.MarkMissing && source.Status != catalog.SourceError {
					if err := s.Catalog.MarkSourceError(ctx, source.SourceID, MessageMissingObject); err != nil {
						summary.OperationalFailures++
						addIssue(fmt.Sprintf("tenant %s mark source %s failed: %v", tenant.TenantID, source.SourceID, err))
						continue
					}
					summary.SourcesMarkedFailed++
				}
				continue
			}
			if info.Size != source.SizeBytes {
				summary.SizeMismatches++
				addIssue(fmt.Sprintf("tenant %s size mismatch for %s (expected=%d actual=%d)", tenant.TenantID, source.ObjectPath, source.SizeBytes, info.Size))
			}
		}
	}

	if summary.SourcesChecked > 0 {
		integritySourcesCheckedTotal.Add(float64(summary.SourcesChecked))
	}
	if summary.MissingObjects > 0 {
		integrityMissingObjectsTotal.Add(float64(summary.MissingObjects))
	}
	if summary.SizeMismatches > 0 {
		integritySizeMismatchTotal.Add(float64(summary.SizeMismatches))
	}
	if issueCount > 0 {
		integrityRunsTotal.WithLabelValues("failed").Inc()
		extra := issueCount - len(issueSamples)
		if extra > 0 {
			return summary, fmt.Errorf("integrity check found %d issue(s): %s; ... plus %d more", issueCount, strings.Join(issueSamples, "; "), extra)
		}
		return summary, fmt.Errorf("integrity check found %d issue(s): %s", issueCount, strings.Join(issueSamples, "; "))
	}
	integrityRunsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

// failedAt is when the source entered status error, falling back to the
// upload time for rows that never recorded it.
func failedAt(source catalog.Source) time.Time {
	if source.ParsedAt != nil {
		return *source.ParsedAt
	}
	return source.UploadedAt
}

func (s *Service) listTargetTenants(ctx context.Context, tenantID string) ([]catalog.Tenant, error) {
	if strings.TrimSpace(tenantID) != "" {
		return []catalog.Tenant{{TenantID: strings.TrimSpace(tenantID), Status: "active"}}, nil
	}
	tenants, err := s.Catalog.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Config.IntegrityInterval <= 0 {
		s.Config.IntegrityInterval = 15 * time.Minute
	}
	if s.Config.RetentionInterval <= 0 {
		s.Config.RetentionInterval = time.Hour
	}
	if s.Config.FailedSourceTTL <= 0 {
		s.Config.FailedSourceTTL = 7 * 24 * time.Hour
	}
}
