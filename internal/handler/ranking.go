package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/teamrally/internal/apperror"
	"github.com/sakif/teamrally/internal/model"
	"github.com/sakif/teamrally/internal/ranking"
)

// Ranker is the part of ranking.Service the handler calls.
type Ranker interface {
	TopRankings(ctx context.Context, limit int) ([]model.RankingEntry, error)
}

// RankingHandler serves the public leaderboard.
type RankingHandler struct {
	rankings Ranker
	logger   *slog.Logger
}

func NewRankingHandler(rankings Ranker, logger *slog.Logger) *RankingHandler {
	return &RankingHandler{rankings: rankings, logger: logger}
}

// RankingsResponse wraps the leaderboard.
type RankingsResponse struct {
	Rankings []model.RankingEntry `json:"rankings"`
}

// HandleRankings returns the top teams by score.
//
// HTTP: GET /api/rankings?limit=20
//
// QUERY PARAMETERS:
//   - limit: 1..100, default 20
func (h *RankingHandler) HandleRankings(w http.ResponseWriter, r *http.Request) {
	limit := ranking.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > ranking.MaxLimit {
			writeError(w, r, h.logger, apperror.ValidationFailed("limit",
				fmt.Sprintf("limit must be an integer between 1 and %d", ranking.MaxLimit)))
			return
		}
		limit = n
	}

	entries, err := h.rankings.TopRankings(r.Context(), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	// Encode an empty leaderboard as [], not null.
	if entries == nil {
		entries = []model.RankingEntry{}
	}

	writeJSON(w, http.StatusOK, RankingsResponse{Rankings: entries})
}
