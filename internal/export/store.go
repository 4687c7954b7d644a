package export

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/opendate-cli/internal/store"
)

// StoreSink writes one audit row per attempted source.
type StoreSink struct {
	Store store.Store
	Now   func() time.Time
}

// Write implements Sink.
func (s StoreSink) Write(ctx context.Context, run Run) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	rows, err := store.AuditRows(run.RunID, run.Entities, run.Results, now().UTC())
	if err != nil {
		return err
	}
	n, err := s.Store.SaveResolutions(ctx, rows)
	if err != nil {
		return err
	}
	zap.L().Info("export: saved resolution audit",
		zap.String("run_id", run.RunID),
		zap.Int64("rows", n),
	)
	return nil
}
