package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-gate/internal/constants"
	"github.com/kozaktomas/face-gate/internal/enroll"
	"github.com/kozaktomas/face-gate/internal/facematch"
)

// Enroller manages enrolled faces.
type Enroller interface {
	Enroll(ctx context.Context, userID string, images [][]byte) (*enroll.Result, error)
	EnrollEmbedding(ctx context.Context, userID string, emb []float64) (*enroll.Result, error)
	DeleteFace(ctx context.Context, faceID string) (*enroll.Result, error)
	ListFaces(ctx context.Context, userID string) ([]facematch.FaceProfile, error)
}

// FacesHandler handles face enrollment endpoints.
type FacesHandler struct {
	enroller Enroller
}

// NewFacesHandler creates a new faces handler.
func NewFacesHandler(e Enroller) *FacesHandler {
	return &FacesHandler{enroller: e}
}

// FaceResponse describes one enrolled face. Embeddings are not exposed.
type FaceResponse struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// EnrollRequest is the JSON form of an enrollment.
type EnrollRequest struct {
	Embedding []float64 `json:"embedding"`
}

// EnrollResponse is returned after an enrollment or deletion.
type EnrollResponse struct {
	UserID     string         `json:"user_id"`
	Added      []FaceResponse `json:"added,omitempty"`
	FaceCount  int            `json:"face_count"`
	HasProfile bool           `json:"has_profile"`
}

func newFaceResponses(faces []facematch.FaceProfile) []FaceResponse {
	out := make([]FaceResponse, 0, len(faces))
	for _, f := range faces {
		out = append(out, FaceResponse{ID: f.ID, UserID: f.UserID, EnrolledAt: f.EnrolledAt})
	}
	return out
}

func newEnrollResponse(res *enroll.Result) EnrollResponse {
	return EnrollResponse{
		UserID:     res.UserID,
		Added:      newFaceResponses(res.Added),
		FaceCount:  res.FaceCount,
		HasProfile: res.HasProfile,
	}
}

// Enroll adds faces to a user, creating the user if absent. Accepts one or
// more multipart "image" files or a JSON {embedding}.
func (h *FacesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), constants.EnrollTimeout)
	defer cancel()

	var (
		res *enroll.Result
		err error
	)
	if isMultipart(r) {
		images, rerr := readImages(r)
		if rerr != nil {
			respondServiceError(w, r, rerr)
			return
		}
		res, err = h.enroller.Enroll(ctx, userID, images)
	} else {
		var req EnrollRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		res, err = h.enroller.EnrollEmbedding(ctx, userID, req.Embedding)
	}
	if err != nil {
		log.Printf("warning: enrollment for %s rejected: %v", sanitizeForLog(userID), err)
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, newEnrollResponse(res))
}

// List returns the faces of a user.
func (h *FacesHandler) List(w http.ResponseWriter, r *http.Request) {
	faces, err := h.enroller.ListFaces(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newFaceResponses(faces))
}

// Delete removes one face and recomputes the owner's centroid.
func (h *FacesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	res, err := h.enroller.DeleteFace(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newEnrollResponse(res))
}
