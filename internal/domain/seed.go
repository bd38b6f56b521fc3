package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SampleEvents is the development catalog loaded by cmd/seed-events and by
// the in-memory catalog.
func SampleEvents() []Event {
	return []Event{
		{
			EventID:   "E1001",
			Title:     "周傑倫 嘉年華世界巡迴演唱會",
			Date:      time.Date(2026, 3, 15, 19, 30, 0, 0, time.UTC),
			Venue:     "台北大巨蛋",
			BasePrice: decimal.NewFromInt(3800),
			ImageURL:  "/image/jay-chou.jpg",
			Category:  "Concert",
		},
		{
			EventID:   "E1002",
			Title:     "NBA 台北夏季邀請賽",
			Date:      time.Date(2025, 7, 20, 14, 0, 0, 0, time.UTC),
			Venue:     "台北小巨蛋",
			BasePrice: decimal.NewFromInt(2500),
			ImageURL:  "/image/nba-game.jpg",
			Category:  "Sports",
		},
		{
			EventID:   "E1003",
			Title:     "AI 時代下的藝術展",
			Date:      time.Date(2025, 10, 1, 10, 0, 0, 0, time.UTC),
			Venue:     "華山文創園區",
			BasePrice: decimal.NewFromInt(800),
			ImageURL:  "/image/ai-art.jpg",
			Category:  "Exhibition",
		},
	}
}
