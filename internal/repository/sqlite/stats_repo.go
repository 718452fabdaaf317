package sqlite

import (
	"context"

	"streamingplus/internal/domain"
	"streamingplus/internal/repository"
)

// StatsRepo implements repository.StreamingStatsRepository
type StatsRepo struct {
	db *DB
}

func NewStatsRepo(db *DB) repository.StreamingStatsRepository {
	return &StatsRepo{db: db}
}

// IncrementDaily bumps the counter for bannerID on day (YYYY-MM-DD)
func (r *StatsRepo) IncrementDaily(ctx context.Context, bannerID int64, day string) error {
	query := `INSERT INTO streaming_stats (banner_id, day, views) VALUES (?, ?, 1)
			  ON CONFLICT(banner_id, day) DO UPDATE SET views = views + 1`
	if _, err := r.db.ExecContext(ctx, query, bannerID, day); err != nil {
		return storeErr("increment daily views", err)
	}
	return nil
}

// ListByBanner returns the banner's daily counters, oldest day first
func (r *StatsRepo) ListByBanner(ctx context.Context, bannerID int64) ([]domain.StreamingStat, error) {
	query := `SELECT banner_id, day, views FROM streaming_stats WHERE banner_id = ? ORDER BY day ASC`
	rows, err := r.db.QueryContext(ctx, query, bannerID)
	if err != nil {
		return nil, storeErr("list streaming stats", err)
	}
	defer rows.Close()

	stats := []domain.StreamingStat{}
	for rows.Next() {
		var s domain.StreamingStat
		if err := rows.Scan(&s.BannerID, &s.Day, &s.Views); err != nil {
			return nil, storeErr("scan streaming stat", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list streaming stats", err)
	}
	return stats, nil
}
