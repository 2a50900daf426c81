package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-gate/internal/constants"
	"github.com/kozaktomas/face-gate/internal/database"
	"github.com/kozaktomas/face-gate/internal/enroll"
	"github.com/kozaktomas/face-gate/internal/facematch"
	"github.com/kozaktomas/face-gate/internal/quality"
	"github.com/kozaktomas/face-gate/internal/recognition"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps domain errors to HTTP responses.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		qe       *facematch.QualityError
		nre      *facematch.NotRecognizedError
		mismatch *facematch.IdentityMismatchError
	)
	switch {
	case errors.As(err, &qe):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":  string(qe.Reason),
			"detail": err.Error(),
		})
	case errors.As(err, &nre):
		code := "face_not_recognized"
		if nre.Record.Reason == facematch.ReasonNoProfiles {
			code = "no_profiles"
		}
		respondJSON(w, http.StatusNotFound, map[string]any{
			"error":  code,
			"record": newDecisionRecordResponse(nre.Record),
		})
	case errors.As(err, &mismatch):
		respondJSON(w, http.StatusForbidden, map[string]string{
			"error":    "identity_mismatch",
			"asserted": mismatch.Asserted,
			"detected": mismatch.Detected,
		})
	case errors.Is(err, enroll.ErrImageTooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, quality.ErrInvalidImage),
		errors.Is(err, facematch.ErrInvalidEmbedding),
		errors.Is(err, enroll.ErrInvalidUserID),
		errors.Is(err, enroll.ErrNoImages),
		errors.Is(err, enroll.ErrTooManyImages),
		errors.Is(err, recognition.ErrEmptyQuery):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, facematch.ErrExtractionFailed):
		log.Printf("warning: extraction failed for %s %s: %v", r.Method, sanitizeForLog(r.URL.Path), err)
		respondError(w, http.StatusBadGateway, "extraction_failed")
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout")
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the response.
		w.WriteHeader(499)
	case errors.Is(err, facematch.ErrStorage):
		log.Printf("error: storage failure for %s %s: %v", r.Method, sanitizeForLog(r.URL.Path), err)
		respondError(w, http.StatusInternalServerError, "storage_error")
	default:
		log.Printf("error: %s %s: %v", r.Method, sanitizeForLog(r.URL.Path), err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// isMultipart reports whether the request carries a multipart form.
func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// readUpload reads one multipart file, refusing anything above MaxImageBytes.
func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > constants.MaxImageBytes {
		return nil, fmt.Errorf("%s: %w: %d bytes", fh.Filename, enroll.ErrImageTooLarge, fh.Size)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, constants.MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	if len(data) > constants.MaxImageBytes {
		return nil, fmt.Errorf("%s: %w", fh.Filename, enroll.ErrImageTooLarge)
	}
	return data, nil
}

// readImages parses a multipart form and returns every "image" file.
func readImages(r *http.Request) ([][]byte, error) {
	if err := r.ParseMultipartForm(constants.MaxMultipartMemory); err != nil {
		return nil, fmt.Errorf("%w: failed to parse multipart form", quality.ErrInvalidImage)
	}
	files := r.MultipartForm.File["image"]
	images := make([][]byte, 0, len(files))
	for _, fh := range files {
		data, err := readUpload(fh)
		if err != nil {
			return nil, err
		}
		images = append(images, data)
	}
	return images, nil
}

// decodeJSON decodes a size-limited JSON body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, constants.MaxMultipartMemory)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false
	}
	return true
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker func(ctx context.Context) error

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	checks map[string]HealthChecker
}

// NewHealthHandler creates a health handler. Every check runs on each request.
func NewHealthHandler(checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Get returns 200 when all checks pass and 503 otherwise.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			log.Printf("warning: health check %s failed: %v", name, err)
			results[name] = "unavailable"
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	resp := map[string]any{"status": status}
	if len(results) > 0 {
		resp["checks"] = results
	}
	respondJSON(w, code, resp)
}
