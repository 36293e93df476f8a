// Package event は公開中イベントの一覧取得を提供する。
package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/marquee/internal/cache"
	"github.com/hitoshi/marquee/internal/model"
	"github.com/hitoshi/marquee/internal/repository"
)

const (
	// DefaultLimit はlimit未指定時の取得件数。
	DefaultLimit = 32
	// MaxLimit は1回の取得件数の上限。
	MaxLimit = 100
)

// Query はイベント一覧の取得条件。Fromがnilの場合は日付で絞り込まない。
type Query struct {
	From  *time.Time
	Limit int
}

// CacheMetrics はキャッシュのヒット/ミスの記録先。
type CacheMetrics interface {
	RecordEventsCache(hit bool)
}

// Service はイベント一覧を返す。cacheがnilの場合は毎回ストアを参照する。
type Service struct {
	events  repository.EventRepository
	cache   cache.Cache
	metrics CacheMetrics
}

// NewService はServiceを生成する。c と metrics はnilでもよい。
func NewService(events repository.EventRepository, c cache.Cache, metrics CacheMetrics) *Service {
	return &Service{events: events, cache: c, metrics: metrics}
}

// ListUpcoming は公開中のイベントを開催日の昇順で返す。
// Limitは0以下なら既定値、上限を超えればMaxLimitに丸める。
func (s *Service) ListUpcoming(ctx context.Context, q Query) ([]model.Event, error) {
	q.Limit = clampLimit(q.Limit)
	key := cacheKey(q)

	if s.cache != nil {
		var cached []model.Event
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			slog.Warn("イベントキャッシュの取得に失敗しました", slog.String("key", key), slog.String("error", err.Error()))
		}
		s.recordCache(found && err == nil)
		if found && err == nil {
			return cached, nil
		}
	}

	events, err := s.events.ListPublished(ctx, q.From, q.Limit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, events); err != nil {
			slog.Warn("イベントキャッシュの保存に失敗しました", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
	return events, nil
}

func (s *Service) recordCache(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordEventsCache(hit)
	}
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

func cacheKey(q Query) string {
	from := "all"
	if q.From != nil {
		from = q.From.UTC().Format(repository.EventDateLayout)
	}
	return fmt.Sprintf("events:upcoming:%s:%d", from, q.Limit)
}
