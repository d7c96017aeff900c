package dashboard

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
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

func seed(t *testing.T, db *gorm.DB, ip string, n int, tokensEach int, at time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		rec := models.UsageRecord{
			ID:          uuid.New().String(),
			Timestamp:   at,
			ClientIP:    ip,
			PublicName:  "gpt-4",
			TotalTokens: tokensEach,
			Status:      models.StatusSuccess,
		}
		require.NoError(t, db.Create(&rec).Error)
	}
}

func TestClientLeaderboard_OrdersByTotalTokensDesc(t *testing.T) {
	db := testDB(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	seed(t, db, "1.2.3.4", 60, 100, now) // 60 * 100 = 6000
	seed(t, db, "5.6.7.8", 40, 200, now) // 40 * 200 = 8000

	q := New(db)
	rows, err := q.ClientLeaderboard(now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "5.6.7.8", rows[0].Key)
	require.Equal(t, int64(8000), rows[0].TotalTokens)
	require.Equal(t, "1.2.3.4", rows[1].Key)
	require.Equal(t, int64(6000), rows[1].TotalTokens)
}

func TestTimeBuckets_EmitsEmptyBucketsWithZeroValues(t *testing.T) {
	db := testDB(t)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seed(t, db, "1.2.3.4", 1, 100, start)

	q := New(db)
	buckets, err := q.TimeBuckets(start, start.Add(3*time.Hour), BucketHour)
	require.NoError(t, err)
	require.Len(t, buckets, 3)
	require.Equal(t, int64(1), buckets[0].RequestCount)
	require.Equal(t, int64(100), buckets[0].TotalTokens)
	require.Zero(t, buckets[1].RequestCount)
	require.Zero(t, buckets[2].RequestCount)
}
