package tender

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/solutionhub/platform/pkg/common/logger"
)

const statsCacheKey = "tender:dashboard_stats"

type Service struct {
	repo     *Repository
	cache    *redis.Client
	cacheTTL time.Duration
}

func NewService(repo *Repository, cache *redis.Client, cacheTTL time.Duration) *Service {
	return &Service{repo: repo, cache: cache, cacheTTL: cacheTTL}
}

func (s *Service) Search(ctx context.Context, filter SearchFilter) ([]Tender, int64, error) {
	return s.repo.Search(ctx, filter)
}

func (s *Service) Get(ctx context.Context, id string) (*Tender, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) MarkOpportunity(ctx context.Context, id, userID string) (*Tender, error) {
	if err := s.repo.MarkOpportunity(ctx, id, userID); err != nil {
		return nil, err
	}
	s.invalidateStats(ctx)
	return s.repo.FindByID(ctx, id)
}

// DashboardStats serves the aggregate counters, cached for a few minutes
// since the dashboard polls them far more often than the store changes.
func (s *Service) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, statsCacheKey).Bytes(); err == nil {
			var stats DashboardStats
			if err := json.Unmarshal(cached, &stats); err == nil {
				return &stats, nil
			}
		}
	}

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if encoded, err := json.Marshal(stats); err == nil {
			if err := s.cache.Set(ctx, statsCacheKey, encoded, s.cacheTTL).Err(); err != nil {
				logger.Log.WithError(err).Warn("failed to cache dashboard stats")
			}
		}
	}

	return stats, nil
}

func (s *Service) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, statsCacheKey).Err(); err != nil {
		logger.Log.WithError(err).Warn("failed to invalidate stats cache")
	}
}
