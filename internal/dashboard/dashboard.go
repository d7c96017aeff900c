// Package dashboard implements the read-only aggregation queries over
// usage_records: client/model leaderboards and time-bucketed rollups.
// Grounded on the GORM query-chaining style of
// ProxyMonitor.GetLogsWithPagination (internal/proxy/monitor/monitor.go),
// generalized from plain pagination to Group/Order aggregation.
package dashboard

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/clads-dev/clads-gateway/internal/store/models"
)

// Query runs read-only aggregations against the usage_records table.
type Query struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Query {
	return &Query{db: db}
}

// LeaderboardRow is one ranked entry in a client or model leaderboard.
type LeaderboardRow struct {
	Key          string `json:"key"`
	RequestCount int64  `json:"request_count"`
	TotalTokens  int64  `json:"total_tokens"`
}

// ClientLeaderboard ranks client_ip by total_tokens desc within [start, end),
// tie-broken by request_count desc then lexicographic client_ip.
func (q *Query) ClientLeaderboard(start, end time.Time) ([]LeaderboardRow, error) {
	return q.leaderboard("client_ip", start, end)
}

// ModelLeaderboard ranks public_name the same way ClientLeaderboard ranks client_ip.
func (q *Query) ModelLeaderboard(start, end time.Time) ([]LeaderboardRow, error) {
	return q.leaderboard("public_name", start, end)
}

func (q *Query) leaderboard(column string, start, end time.Time) ([]LeaderboardRow, error) {
	var rows []LeaderboardRow
	err := q.db.Model(&models.UsageRecord{}).
		Select(fmt.Sprintf("%s as key, COUNT(*) as request_count, COALESCE(SUM(total_tokens), 0) as total_tokens", column)).
		Where("timestamp >= ? AND timestamp < ?", start, end).
		Group(column).
		Order("total_tokens DESC, request_count DESC, key ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("leaderboard query on %s: %w", column, err)
	}
	return rows, nil
}

// BucketSize is the closed set of rollup granularities.
type BucketSize string

const (
	BucketMinute BucketSize = "minute"
	BucketHour   BucketSize = "hour"
	BucketDay    BucketSize = "day"
)

func (b BucketSize) duration() time.Duration {
	switch b {
	case BucketMinute:
		return time.Minute
	case BucketHour:
		return time.Hour
	case BucketDay:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// Bucket is one point in a time-bucketed rollup series.
type Bucket struct {
	Start         time.Time `json:"bucket_start"`
	RequestCount  int64     `json:"request_count"`
	TotalTokens   int64     `json:"total_tokens"`
	AvgResponseMs float64   `json:"avg_response_ms"`
}

// TimeBuckets returns one Bucket per bucketSize-aligned interval in
// [start, end), including empty buckets with zero values, aligned to UTC
// boundaries. Aggregation itself runs in Go over indexed-timestamp rows
// rather than in SQL, since bucket alignment must be computed the same way
// regardless of the underlying database's date-truncation support.
func (q *Query) TimeBuckets(start, end time.Time, size BucketSize) ([]Bucket, error) {
	start = start.UTC()
	end = end.UTC()
	step := size.duration()

	var rows []models.UsageRecord
	err := q.db.Select("timestamp", "total_tokens", "response_time_ms").
		Where("timestamp >= ? AND timestamp < ?", start, end).
		Order("timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("time buckets query: %w", err)
	}

	aligned := start.Truncate(step)
	var buckets []Bucket
	for t := aligned; t.Before(end); t = t.Add(step) {
		buckets = append(buckets, Bucket{Start: t})
	}
	if len(buckets) == 0 {
		return buckets, nil
	}

	index := func(ts time.Time) int {
		offset := ts.UTC().Sub(aligned)
		i := int(offset / step)
		if i < 0 || i >= len(buckets) {
			return -1
		}
		return i
	}

	sumResponseMs := make([]int64, len(buckets))
	for _, r := range rows {
		i := index(r.Timestamp)
		if i < 0 {
			continue
		}
		buckets[i].RequestCount++
		buckets[i].TotalTokens += int64(r.TotalTokens)
		sumResponseMs[i] += r.ResponseTimeMs
	}
	for i := range buckets {
		if buckets[i].RequestCount > 0 {
			buckets[i].AvgResponseMs = float64(sumResponseMs[i]) / float64(buckets[i].RequestCount)
		}
	}
	return buckets, nil
}
