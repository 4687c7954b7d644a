package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/opendate-cli/internal/model"
	"github.com/sells-group/opendate-cli/internal/table"
)

func TestValidateReport(t *testing.T) {
	tbl := table.New(
		[]string{"osm_id", "name", "latitude", "longitude", "uprn"},
		[][]string{
			{"n1", "Cafe", "51.5", "-0.1", ""},
			{"n2", "", "", "", "100"},
			{"n3", "", "not", "a number", ""},
			{"", "Pub", "", "", ""},
		},
	)
	cols, rep, err := Validate(tbl, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, rep.Rows)
	assert.Equal(t, 2, rep.WithName)
	assert.Equal(t, 1, rep.WithCoordinates)
	assert.Equal(t, 1, rep.WithReference)
	assert.Equal(t, 1, rep.Unusable)
	assert.Contains(t, rep.Columns, FieldLat)

	ents := EntitiesFrom(tbl, cols)
	require.Len(t, ents, 4)
	assert.Equal(t, "n1", ents[0].ID)
	require.NotNil(t, ents[0].Coordinates)
	assert.InDelta(t, -0.1, ents[0].Coordinates.Lon, 1e-9)
	assert.Equal(t, "100", ents[1].PropertyReference)
	assert.Nil(t, ents[2].Coordinates)
	assert.Equal(t, "row-4", ents[3].ID)
	assert.Equal(t, "Pub", ents[3].Row["name"])
}

func TestValidateNoUsableColumns(t *testing.T) {
	tbl := table.New([]string{"id", "category"}, [][]string{{"1", "shop"}})
	_, _, err := Validate(tbl, nil)
	assert.ErrorIs(t, err, ErrNoUsableColumns)

	// A single coordinate column is not enough.
	tbl = table.New([]string{"id", "lat"}, nil)
	_, _, err = Validate(tbl, nil)
	assert.ErrorIs(t, err, ErrNoUsableColumns)
}

type fakeResolver struct {
	order  []string
	calls  atomic.Int32
	mu     sync.Mutex
	seen   map[string]int
	before func(id string)
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{order: []string{model.SourceCadastralAge}, seen: make(map[string]int)}
}

func (f *fakeResolver) Order() []string { return f.order }

func (f *fakeResolver) Resolve(_ context.Context, e model.Entity) model.ResolvedDate {
	if f.before != nil {
		f.before(e.ID)
	}
	f.calls.Add(1)
	f.mu.Lock()
	f.seen[e.ID]++
	f.mu.Unlock()

	res := model.ResolvedDate{EntityID: e.ID, AttemptedSources: f.order}
	if e.PropertyReference != "" {
		d := model.YearOnly(1900)
		y := d.Year
		res.Date, res.Year, res.Source, res.Tier = &d, &y, model.SourceCadastralAge, model.TierMedium
	}
	return res
}

func entities(n int) []model.Entity {
	out := make([]model.Entity, n)
	for i := range out {
		out[i] = model.Entity{ID: fmt.Sprintf("e%03d", i)}
		if i%2 == 0 {
			out[i].PropertyReference = fmt.Sprint(i + 1)
		}
	}
	return out
}

type memCheckpointer struct {
	mu      sync.Mutex
	cp      *model.Checkpoint
	saves   int
	deleted bool
}

func (m *memCheckpointer) Load(context.Context) (*model.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cp, nil
}

func (m *memCheckpointer) Save(_ context.Context, cp *model.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *cp
	c.Results = append([]model.ResolvedDate(nil), cp.Results...)
	m.cp = &c
	m.saves++
	return nil
}

func (m *memCheckpointer) Delete(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cp = nil
	m.deleted = true
	return nil
}

func TestRunComplete(t *testing.T) {
	res := newFakeResolver()
	cp := &memCheckpointer{}
	r := NewRunner(res, cp, Options{CheckpointInterval: 10, Concurrency: 4})

	out, err := r.Run(context.Background(), entities(25))
	require.NoError(t, err)

	require.Len(t, out.Results, 25)
	for i, rd := range out.Results {
		assert.Equal(t, fmt.Sprintf("e%03d", i), rd.EntityID, "results keep input order")
	}
	assert.Equal(t, 25, out.Metrics.Total)
	assert.Equal(t, 13, out.Metrics.Resolved)
	assert.Equal(t, 3, cp.saves)
	assert.True(t, cp.deleted)
	assert.Nil(t, cp.cp)
	assert.NotEmpty(t, out.RunID)
}

func TestRunCancelAndResume(t *testing.T) {
	ents := entities(30)
	cp := &memCheckpointer{}

	ctx, cancel := context.WithCancel(context.Background())
	res := newFakeResolver()
	res.before = func(id string) {
		if id == "e012" {
			cancel()
		}
	}
	r := NewRunner(res, cp, Options{CheckpointInterval: 10, Concurrency: 1, Resume: true})

	_, err := r.Run(ctx, ents)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, cp.cp)
	// e012 was in flight when cancelled and still finished.
	assert.Equal(t, 13, cp.cp.Cursor)
	assert.NoError(t, cp.cp.Validate())
	firstRun := cp.cp.RunID

	resumed := newFakeResolver()
	r = NewRunner(resumed, cp, Options{CheckpointInterval: 10, Concurrency: 3, Resume: true})
	out, err := r.Run(context.Background(), ents)
	require.NoError(t, err)

	assert.Equal(t, firstRun, out.RunID)
	assert.Equal(t, 13, out.Resumed)
	assert.Equal(t, int32(17), resumed.calls.Load(), "checkpointed entities are not resolved again")
	require.Len(t, out.Results, 30)

	// Same output as an uninterrupted run.
	fresh, err := NewRunner(newFakeResolver(), nil, Options{CheckpointInterval: 7}).Run(context.Background(), ents)
	require.NoError(t, err)
	assert.Equal(t, fresh.Results, out.Results)
	assert.Equal(t, fresh.Metrics, out.Metrics)
}

func TestRunResumeFromFile(t *testing.T) {
	ents := entities(30)
	cp := FileCheckpointer{Path: filepath.Join(t.TempDir(), "run.checkpoint.json")}

	ctx, cancel := context.WithCancel(context.Background())
	res := newFakeResolver()
	res.before = func(id string) {
		if id == "e012" {
			cancel()
		}
	}
	_, err := NewRunner(res, cp, Options{CheckpointInterval: 10, Concurrency: 1, Resume: true}).Run(ctx, ents)
	require.ErrorIs(t, err, context.Canceled)

	saved, err := cp.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, 13, saved.Cursor)

	resumed := newFakeResolver()
	out, err := NewRunner(resumed, cp, Options{CheckpointInterval: 10, Concurrency: 3, Resume: true}).Run(context.Background(), ents)
	require.NoError(t, err)
	assert.Equal(t, saved.RunID, out.RunID)
	assert.Equal(t, 13, out.Resumed)
	assert.Equal(t, int32(17), resumed.calls.Load())

	fresh, err := NewRunner(newFakeResolver(), nil, Options{CheckpointInterval: 7}).Run(context.Background(), ents)
	require.NoError(t, err)
	assert.Equal(t, fresh.Results, out.Results)
	assert.Equal(t, fresh.Metrics, out.Metrics)

	_, err = os.Stat(cp.Path)
	assert.ErrorIs(t, err, os.ErrNotExist, "checkpoint removed after completion")
}

func TestRunFingerprintMismatch(t *testing.T) {
	ents := entities(5)
	cp := &memCheckpointer{cp: &model.Checkpoint{RunID: "old", Fingerprint: "other", Cursor: 0}}

	_, err := NewRunner(newFakeResolver(), cp, Options{Resume: true}).Run(context.Background(), ents)
	assert.ErrorIs(t, err, ErrCheckpointMismatch)

	// Without resume the stale checkpoint is ignored and replaced.
	out, err := NewRunner(newFakeResolver(), cp, Options{}).Run(context.Background(), ents)
	require.NoError(t, err)
	assert.Len(t, out.Results, 5)
}

func TestFingerprint(t *testing.T) {
	ents := entities(3)
	a := Fingerprint(ents, []string{"x", "y"})
	assert.Equal(t, a, Fingerprint(ents, []string{"x", "y"}))
	assert.NotEqual(t, a, Fingerprint(ents, []string{"y", "x"}))
	assert.NotEqual(t, a, Fingerprint(ents[:2], []string{"x", "y"}))
}

func TestFileCheckpointer(t *testing.T) {
	ctx := context.Background()
	f := FileCheckpointer{Path: filepath.Join(t.TempDir(), "run.checkpoint.json")}

	cp, err := f.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cp)

	d := model.ExactDay(2001, 2, 3)
	want := &model.Checkpoint{
		RunID:       "r1",
		Cursor:      1,
		Fingerprint: "fp",
		Results:     []model.ResolvedDate{{EntityID: "e1", Date: &d, Source: model.SourceBusinessRegistry}},
	}
	require.NoError(t, f.Save(ctx, want))

	got, err := f.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "r1", got.RunID)
	assert.Equal(t, d, *got.Results[0].Date)

	require.NoError(t, f.Delete(ctx))
	require.NoError(t, f.Delete(ctx), "deleting twice is fine")
	got, err = f.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}
