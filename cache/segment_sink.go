package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"hlswatch/core/dispatch"
	"hlswatch/logger"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix   = "hlswatch:"
	indexKey    = keyPrefix + "playlists"
	lastPrefix  = keyPrefix + "last:"
	histPrefix  = keyPrefix + "history:"
	opTimeout   = 5 * time.Second
	defaultKeep = 100
)

// SegmentRecord is what gets stored for each dispatched segment.
type SegmentRecord struct {
	Playlist     string    `json:"playlist"`
	URI          string    `json:"uri"`
	StartTime    time.Time `json:"startTime,omitzero"`
	Duration     float64   `json:"duration"`
	DispatchedAt time.Time `json:"dispatchedAt"`
}

func newRecord(u dispatch.Unit, now time.Time) SegmentRecord {
	return SegmentRecord{
		Playlist:     u.Playlist,
		URI:          u.Segment.URI,
		StartTime:    u.Segment.StartTime,
		Duration:     u.Segment.Duration,
		DispatchedAt: now.UTC(),
	}
}

func lastKey(playlist string) string { return lastPrefix + playlist }
func historyKey(playlist string) string { return histPrefix + playlist }

// RedisSink keeps the last dispatched segment of every playlist plus a bounded
// newest-first history list.
type RedisSink struct {
	client  *redis.Client
	history int64
	ttl     time.Duration
}

// NewRedisSink keeps at most history entries per playlist. A zero ttl never expires keys.
func NewRedisSink(client *redis.Client, history int, ttl time.Duration) *RedisSink {
	if history < 1 {
		history = defaultKeep
	}
	return &RedisSink{client: client, history: int64(history), ttl: ttl}
}

func (s *RedisSink) Dispatch(ctx context.Context, u dispatch.Unit) error {
	data, err := json.Marshal(newRecord(u, time.Now()))
	if err != nil {
		return fmt.Errorf("encode segment record: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, indexKey, u.Playlist)
		pipe.Set(ctx, lastKey(u.Playlist), data, s.ttl)
		pipe.LPush(ctx, historyKey(u.Playlist), data)
		pipe.LTrim(ctx, historyKey(u.Playlist), 0, s.history-1)
		if s.ttl > 0 {
			pipe.Expire(ctx, historyKey(u.Playlist), s.ttl)
		}
		return nil
	})
	if err != nil {
		logger.Error("record segment in redis failed",
			logger.Path(u.Playlist),
			logger.String("uri", u.Segment.URI),
			logger.ErrorField(err))
		return fmt.Errorf("redis record %s: %w", u.Segment.URI, err)
	}
	return nil
}

// LastSegments returns the latest record of every known playlist, ordered by playlist.
// Playlists whose record has expired are dropped from the index.
func (s *RedisSink) LastSegments(ctx context.Context) ([]SegmentRecord, error) {
	playlists, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list playlists: %w", err)
	}
	if len(playlists) == 0 {
		return nil, nil
	}
	sort.Strings(playlists)

	keys := make([]string, len(playlists))
	for i, p := range playlists {
		keys[i] = lastKey(p)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load last segments: %w", err)
	}

	records := make([]SegmentRecord, 0, len(values))
	var expired []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, playlists[i])
			continue
		}
		var rec SegmentRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			logger.Warn("skipping unreadable segment record", logger.String("key", keys[i]), logger.ErrorField(err))
			continue
		}
		records = append(records, rec)
	}
	if len(expired) > 0 {
		s.client.SRem(ctx, indexKey, expired...)
	}
	return records, nil
}

// History returns up to n records for playlist, newest first.
func (s *RedisSink) History(ctx context.Context, playlist string, n int) ([]SegmentRecord, error) {
	if n < 1 {
		n = int(s.history)
	}
	raws, err := s.client.LRange(ctx, historyKey(playlist), 0, int64(n)-1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("load history for %s: %w", playlist, err)
	}
	records := make([]SegmentRecord, 0, len(raws))
	for _, raw := range raws {
		var rec SegmentRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
