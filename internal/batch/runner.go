package batch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/opendate-cli/internal/model"
	"github.com/sells-group/opendate-cli/internal/waterfall"
)

// ErrCheckpointMismatch means a stored checkpoint belongs to a different
// input or priority order.
var ErrCheckpointMismatch = eris.New("batch: checkpoint does not match this run")

// Resolver resolves one entity. *waterfall.Engine implements it.
type Resolver interface {
	Resolve(ctx context.Context, e model.Entity) model.ResolvedDate
	Order() []string
}

// Options configures a Runner.
type Options struct {
	CheckpointInterval int
	Concurrency        int
	Resume             bool
	// OnChunk is called after each chunk with the number of entities done.
	OnChunk func(done, total int)
}

// Result is the outcome of a completed run.
type Result struct {
	RunID   string
	Results []model.ResolvedDate
	Metrics model.RunMetrics
	// Resumed counts entities restored from a checkpoint.
	Resumed int
}

// Runner resolves entities in chunks and checkpoints after each chunk.
type Runner struct {
	res  Resolver
	cp   Checkpointer
	opts Options
	now  func() time.Time
}

// NewRunner creates a runner. A nil checkpointer disables checkpoints.
func NewRunner(res Resolver, cp Checkpointer, opts Options) *Runner {
	if cp == nil {
		cp = Nop{}
	}
	if opts.CheckpointInterval <= 0 {
		opts.CheckpointInterval = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Runner{res: res, cp: cp, opts: opts, now: time.Now}
}

// Fingerprint identifies an input and priority order so a checkpoint is only
// resumed against the run that wrote it.
func Fingerprint(entities []model.Entity, order []string) string {
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(len(entities))))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(order, ",")))
	for _, e := range entities {
		h.Write([]byte{0})
		h.Write([]byte(e.ID))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Run resolves every entity. When ctx is cancelled, entities already started
// finish, the processed prefix is checkpointed and ctx.Err() is returned.
// On success the checkpoint is deleted.
func (r *Runner) Run(ctx context.Context, entities []model.Entity) (*Result, error) {
	fp := Fingerprint(entities, r.res.Order())
	out := &Result{RunID: uuid.New().String()}

	if r.opts.Resume {
		cp, err := r.cp.Load(ctx)
		if err != nil {
			return nil, err
		}
		if cp != nil {
			if cp.Fingerprint != fp {
				return nil, eris.Wrapf(ErrCheckpointMismatch, "checkpoint %s has %d results", cp.RunID, len(cp.Results))
			}
			if err := cp.Validate(); err != nil {
				return nil, err
			}
			out.RunID = cp.RunID
			out.Results = cp.Results
			out.Resumed = cp.Cursor
			zap.L().Info("batch: resuming from checkpoint",
				zap.String("run_id", cp.RunID),
				zap.Int("cursor", cp.Cursor),
				zap.Int("total", len(entities)),
			)
		}
	}

	// Checkpoint writes use a context that survives cancellation.
	persist := context.WithoutCancel(ctx)

	for cursor := len(out.Results); cursor < len(entities); {
		end := min(cursor+r.opts.CheckpointInterval, len(entities))
		chunk, n := r.runChunk(ctx, entities[cursor:end])
		out.Results = append(out.Results, chunk[:n]...)
		cursor += n

		if err := r.save(persist, out, fp); err != nil {
			return nil, err
		}
		if r.opts.OnChunk != nil {
			r.opts.OnChunk(cursor, len(entities))
		}
		if err := ctx.Err(); err != nil {
			zap.L().Warn("batch: cancelled",
				zap.String("run_id", out.RunID),
				zap.Int("done", cursor),
				zap.Int("total", len(entities)),
			)
			return nil, err
		}
	}

	out.Metrics = waterfall.ComputeMetrics(out.Results)
	if err := r.cp.Delete(persist); err != nil {
		return nil, err
	}
	zap.L().Info("batch: complete",
		zap.String("run_id", out.RunID),
		zap.Int("total", out.Metrics.Total),
		zap.Int("resolved", out.Metrics.Resolved),
		zap.Float64("coverage", out.Metrics.Coverage),
		zap.Strings("degraded", out.Metrics.Degraded),
	)
	return out, nil
}

// runChunk resolves entities concurrently and returns the results with the
// length of the contiguous prefix that completed.
func (r *Runner) runChunk(ctx context.Context, entities []model.Entity) ([]model.ResolvedDate, int) {
	results := make([]model.ResolvedDate, len(entities))
	done := make([]bool, len(entities))
	work := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i := range entities {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = r.res.Resolve(work, entities[i])
			done[i] = true
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for n < len(done) && done[n] {
		n++
	}
	return results, n
}

func (r *Runner) save(ctx context.Context, out *Result, fp string) error {
	cp := &model.Checkpoint{
		RunID:       out.RunID,
		Cursor:      len(out.Results),
		Fingerprint: fp,
		Results:     out.Results,
		Metrics:     waterfall.ComputeMetrics(out.Results),
		CreatedAt:   r.now().UTC(),
	}
	return eris.Wrap(r.cp.Save(ctx, cp), "batch: save checkpoint")
}
