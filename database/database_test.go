package database

import (
	"path/filepath"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestDatabase(t *testing.T) *Database {
	d, err := NewDatabase(filepath.Join(t.TempDir(), "runs.db"), zap.NewNop())
	assert_.NoError(t, err)
	assert_.NoError(t, d.Migrate())
	t.Cleanup(d.Close)
	return d
}

func TestInsertAndUpdateRun(t *testing.T) {
	assert := assert_.New(t)
	d := newTestDatabase(t)

	run := &Run{
		VideoID:   "BV1xx411c7mD",
		Title:     "Demo",
		Status:    "init",
		StartedAt: time.Now().UTC(),
	}
	assert.NoError(d.InsertRun(run))
	assert.NotZero(run.ID)

	run.Status = "done"
	run.FinishedAt = time.Now().UTC()
	assert.NoError(d.UpdateRun(run))

	runs, err := d.RecentRuns(10)
	assert.NoError(err)
	assert.Len(runs, 1)
	assert.Equal("done", runs[0].Status)
	assert.Equal("Demo", runs[0].Title)
}

func TestRecentRunsOrderAndLimit(t *testing.T) {
	assert := assert_.New(t)
	d := newTestDatabase(t)

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		assert.NoError(d.InsertRun(&Run{
			VideoID:   "BV1xx411c7mD",
			Status:    "done",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := d.RecentRuns(2)
	assert.NoError(err)
	assert.Len(runs, 2)
	assert.True(runs[0].StartedAt.After(runs[1].StartedAt))
}

func TestRunsByStatus(t *testing.T) {
	assert := assert_.New(t)
	d := newTestDatabase(t)

	assert.NoError(d.InsertRun(&Run{VideoID: "a", Status: "done", StartedAt: time.Now().UTC()}))
	assert.NoError(d.InsertRun(&Run{VideoID: "b", Status: "aborted", Error: "boom", StartedAt: time.Now().UTC()}))

	runs, err := d.RunsByStatus("aborted")
	assert.NoError(err)
	assert.Len(runs, 1)
	assert.Equal("b", runs[0].VideoID)
	assert.Equal("boom", runs[0].Error)
}
