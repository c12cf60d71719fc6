package services

import (
	"context"

	"powerup-economy/models"

	"gorm.io/gorm"
)

type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
	Points   int64  `json:"points"`
	Title    string `json:"title"`
}

type LeaderboardService struct {
	store *Store
}

func NewLeaderboardService(store *Store) *LeaderboardService {
	return &LeaderboardService{store: store}
}

// Top returns active players by points, highest first.
func (s *LeaderboardService) Top(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var players []models.Player
	err := s.store.Read(ctx, "leaderboard.top", func(db *gorm.DB) error {
		return db.Where("is_active = ?", true).
			Order("points DESC").
			Order("created_at ASC").
			Limit(limit).
			Find(&players).Error
	})
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, len(players))
	for i, p := range players {
		entries[i] = LeaderboardEntry{
			Rank:     i + 1,
			PlayerID: p.ID,
			Username: p.Username,
			Points:   p.Points,
			Title:    p.Title,
		}
	}
	return entries, nil
}
