package models

import (
	"sort"
	"time"
)

// LeaderboardEntry summarizes one model on the leaderboard.
type LeaderboardEntry struct {
	Model           string  `json:"model"`
	RunID           string  `json:"run_id"`
	Score           float64 `json:"score"`
	MaxScore        float64 `json:"max_score"`
	Passed          int     `json:"passed"`
	Total           int     `json:"total"`
	TokensPerSecond float64 `json:"tokens_per_second,omitempty"`
	AvgLatencyMs    int64   `json:"avg_latency_ms,omitempty"`
	TotalCost       float64 `json:"total_cost,omitempty"`
	Pinned          bool    `json:"pinned,omitempty"`
}

// Leaderboard maps model name to its summary entry.
type Leaderboard map[string]LeaderboardEntry

// Ranked returns entries ordered by score descending, then model name.
func (l Leaderboard) Ranked() []LeaderboardEntry {
	out := make([]LeaderboardEntry, 0, len(l))
	for name, e := range l {
		if e.Model == "" {
			e.Model = name
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// Run is one benchmark execution.
type Run struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Models        []string  `json:"models"`
	QuestionCount int       `json:"question_count"`
}

// QuestionSummary is a selector entry for a question.
type QuestionSummary struct {
	ID       string `json:"id"`
	Category string `json:"category,omitempty"`
	Title    string `json:"title,omitempty"`
}

// Preference pins the run that represents a model on the leaderboard.
type Preference struct {
	Model string `json:"model"`
	RunID string `json:"run_id,omitempty"`
}
