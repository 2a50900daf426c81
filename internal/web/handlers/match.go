package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/kozaktomas/face-gate/internal/constants"
	"github.com/kozaktomas/face-gate/internal/recognition"
)

// Matcher recognizes a face.
type Matcher interface {
	Match(ctx context.Context, q recognition.Query) (*recognition.Outcome, error)
}

// MatchHandler handles face match requests.
type MatchHandler struct {
	matcher Matcher
}

// NewMatchHandler creates a new match handler.
func NewMatchHandler(m Matcher) *MatchHandler {
	return &MatchHandler{matcher: m}
}

// MatchRequest is the JSON form of a match request.
type MatchRequest struct {
	Embedding []float64 `json:"embedding"`
	UserID    string    `json:"user_id,omitempty"`
}

// MatchResponse is returned for an accepted match.
type MatchResponse struct {
	Accepted bool                   `json:"accepted"`
	UserID   string                 `json:"user_id"`
	Strategy string                 `json:"strategy,omitempty"`
	Record   DecisionRecordResponse `json:"record"`
}

// Match accepts a multipart "image" (optional "user_id" asserted identity)
// or a JSON {embedding, user_id}.
func (h *MatchHandler) Match(w http.ResponseWriter, r *http.Request) {
	var q recognition.Query
	if isMultipart(r) {
		images, err := readImages(r)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		if len(images) != 1 {
			respondError(w, http.StatusBadRequest, "exactly one image is required")
			return
		}
		q.Image = images[0]
		q.AssertedUserID = r.FormValue("user_id")
	} else {
		var req MatchRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		q.Embedding = req.Embedding
		q.AssertedUserID = req.UserID
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.MatchTimeout)
	defer cancel()

	out, err := h.matcher.Match(ctx, q)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	log.Printf("match: query %s accepted as %s (d=%.3f)", out.Record.QueryID, sanitizeForLog(out.UserID), out.Record.BestDistance)
	resp := MatchResponse{
		Accepted: true,
		UserID:   out.UserID,
		Record:   newDecisionRecordResponse(out.Record),
	}
	if out.Quality != nil {
		resp.Strategy = out.Quality.Strategy
	}
	respondJSON(w, http.StatusOK, resp)
}
