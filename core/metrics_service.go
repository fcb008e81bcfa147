package core

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	metricsKey       = "blinkshop:metrics"
	dailyMetricsKey  = "blinkshop:metrics:"
	dailyMetricsKeep = 8 * 24 * time.Hour
)

// カウンタ名。
const (
	MetricCheckFresh      = "check_fresh"
	MetricCheckStale      = "check_stale"
	MetricRecord          = "record"
	MetricMagicLinkSent   = "magic_link_sent"
	MetricGateBypass      = "gate_bypass"
	MetricGateFreshness   = "gate_freshness"
	MetricGateCheckEmail  = "gate_check_email"
	MetricGateAuthFailed  = "gate_auth_failed"
	MetricConfirmRecorded = "confirm_recorded"
	MetricConfirmFailed   = "confirm_failed"
	MetricImagesUploaded  = "images_uploaded"
	MetricListingsCreated = "listings_created"
)

// MetricsService は Redis のハッシュに認証・アップロードの結果を数える。
// nil の MetricsService は何もしない。
type MetricsService struct {
	redis RedisClientRaw
	now   Clock
	log   *zap.Logger
}

func NewMetricsService(redis RedisClientRaw, log *zap.Logger) *MetricsService {
	if log == nil {
		log = zap.NewNop()
	}
	return &MetricsService{redis: redis, now: time.Now, log: log}
}

// Incr は合計と当日分のカウンタを加算する。失敗はログのみ。
func (s *MetricsService) Incr(ctx context.Context, name string, n int64) {
	if s == nil || s.redis == nil {
		return
	}
	bestEffort(s.log, "increment metric", s.redis.HIncrBy(ctx, metricsKey, name, n).Err(), zap.String("metric", name))

	day := dailyMetricsKey + s.now().UTC().Format("20060102")
	if err := s.redis.HIncrBy(ctx, day, name, n).Err(); err != nil {
		bestEffort(s.log, "increment daily metric", err, zap.String("metric", name))
		return
	}
	bestEffort(s.log, "expire daily metric", s.redis.Expire(ctx, day, dailyMetricsKeep).Err())
}

// Counters は累計カウンタを返す。
func (s *MetricsService) Counters(ctx context.Context) (map[string]int64, error) {
	return s.read(ctx, metricsKey)
}

// Daily は指定日 (UTC) のカウンタを返す。
func (s *MetricsService) Daily(ctx context.Context, day time.Time) (map[string]int64, error) {
	return s.read(ctx, dailyMetricsKey+day.UTC().Format("20060102"))
}

func (s *MetricsService) read(ctx context.Context, key string) (map[string]int64, error) {
	out := map[string]int64{}
	if s == nil || s.redis == nil {
		return out, nil
	}
	raw, err := s.redis.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

// Ping reports whether redis is reachable.
func (s *MetricsService) Ping(ctx context.Context) error {
	if s == nil || s.redis == nil {
		return nil
	}
	return s.redis.Ping(ctx).Err()
}
