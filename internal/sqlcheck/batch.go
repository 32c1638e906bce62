package sqlcheck

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ValidateAll validates statements concurrently, at most parallelism at a
// time, and returns the reports in input order. It only fails when ctx is
// done before every statement was checked.
func (v Validator) ValidateAll(ctx context.Context, statements []string, schemaNames map[string][]string, parallelism int) ([]Report, error) {
	if parallelism <= 0 {
		parallelism = 1
	}
	reports := make([]Report, len(statements))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(parallelism)
	for i, statement := range statements {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			reports[i] = v.Validate(statement, schemaNames)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}
