package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/matchbench/internal/adapters/repository"
)

// ResultsProvider reads stored match results.
type ResultsProvider interface {
	Results(ctx context.Context, batchID string) ([]repository.Record, error)
}

// ResultsHandler handles batch result requests.
type ResultsHandler struct {
	results ResultsProvider
}

// NewResultsHandler creates a new results handler.
func NewResultsHandler(results ResultsProvider) *ResultsHandler {
	return &ResultsHandler{results: results}
}

type resultResponse struct {
	JobID       string  `json:"job_id"`
	Seq         int     `json:"seq"`
	Map         string  `json:"map"`
	TeamA       string  `json:"team_a"`
	TeamB       string  `json:"team_b"`
	Swapped     bool    `json:"swapped"`
	Repetition  int     `json:"repetition"`
	SeedA       int64   `json:"seed_a"`
	SeedB       int64   `json:"seed_b"`
	Winner      string  `json:"winner,omitempty"`
	Error       string  `json:"error,omitempty"`
	DurationSec float64 `json:"duration_sec"`
	Attempts    int     `json:"attempts"`
	FinishedAt  string  `json:"finished_at"`
}

// HandleGetResults handles GET /results/{batch_id} requests.
func (h *ResultsHandler) HandleGetResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/results/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	if h.results == nil {
		writeError(w, http.StatusNotFound, "not_found", ErrNotFound)
		return
	}

	records, err := h.results.Results(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}

	out := make([]resultResponse, 0, len(records))
	for i := range records {
		rec := &records[i]
		out = append(out, resultResponse{
			JobID:       rec.JobID,
			Seq:         rec.Seq,
			Map:         rec.Map,
			TeamA:       rec.TeamA,
			TeamB:       rec.TeamB,
			Swapped:     rec.Swapped,
			Repetition:  rec.Repetition,
			SeedA:       rec.SeedA,
			SeedB:       rec.SeedB,
			Winner:      rec.Winner,
			Error:       rec.Error,
			DurationSec: rec.Duration.Seconds(),
			Attempts:    rec.Attempts,
			FinishedAt:  rec.FinishedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
