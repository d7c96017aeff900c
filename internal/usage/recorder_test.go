package usage

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/clads-dev/clads-gateway/internal/store/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.UsageRecord{}))
	return db
}

func TestRecorder_TotalTokensIsInputPlusOutput(t *testing.T) {
	db := testDB(t)
	r := New(db, 16)

	r.Record(models.UsageRecord{PublicName: "gpt-4", InputTokens: 10, OutputTokens: 5, Status: models.StatusSuccess})
	r.Close()

	var rows []models.UsageRecord
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, 15, rows[0].TotalTokens)
}

func TestRecorder_DropsOldestWhenFull(t *testing.T) {
	db := testDB(t)
	r := &Recorder{db: db, queue: make(chan models.UsageRecord, 2), done: make(chan struct{})}
	// Intentionally not starting run(): exercise Record's enqueue/drop logic directly.

	r.Record(models.UsageRecord{PublicName: "a"})
	r.Record(models.UsageRecord{PublicName: "b"})
	r.Record(models.UsageRecord{PublicName: "c"}) // queue full: drops "a"

	require.EqualValues(t, 1, r.Stats().Dropped)
	require.Len(t, r.queue, 2)

	first := <-r.queue
	require.Equal(t, "b", first.PublicName)
}

func TestRecorder_StatsReflectsQueueDepth(t *testing.T) {
	db := testDB(t)
	r := &Recorder{db: db, queue: make(chan models.UsageRecord, 4), done: make(chan struct{})}

	r.Record(models.UsageRecord{PublicName: "x"})
	r.Record(models.UsageRecord{PublicName: "y"})

	stats := r.Stats()
	require.Equal(t, 2, stats.QueueDepth)
	require.EqualValues(t, 2, stats.Total)
}
