package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-gate/internal/config"
	"github.com/kozaktomas/face-gate/internal/database/mock"
	"github.com/kozaktomas/face-gate/internal/enroll"
	"github.com/kozaktomas/face-gate/internal/facematch"
	"github.com/kozaktomas/face-gate/internal/profiles"
	"github.com/kozaktomas/face-gate/internal/quality"
	"github.com/kozaktomas/face-gate/internal/recognition"
	"github.com/kozaktomas/face-gate/internal/worker"
)

// fakeGate interprets image bytes: "face:N" is a face on axis N, "blurry"
// and "crowd" are quality rejections, "down" means no detector could run.
type fakeGate struct{}

func (fakeGate) Check(ctx context.Context, data []byte) (*quality.Result, error) {
	s := string(data)
	switch {
	case s == "blurry":
		return nil, &facematch.QualityError{Reason: facematch.QualityBlurry}
	case s == "crowd":
		return nil, &facematch.QualityError{Reason: facematch.QualityMultipleFaces}
	case s == "down":
		return nil, facematch.ErrExtractionFailed
	case strings.HasPrefix(s, "face:"):
		n, _ := strconv.Atoi(strings.TrimPrefix(s, "face:"))
		return &quality.Result{Strategy: "cnn", Face: quality.Detection{Embedding: axis(n)}}, nil
	}
	return nil, quality.ErrInvalidImage
}

func axis(i int) []float64 {
	v := make([]float64, facematch.Dim)
	v[i] = 1
	return v
}

type recordingLog struct{ recs []facematch.DecisionRecord }

func (l *recordingLog) Log(rec facematch.DecisionRecord) { l.recs = append(l.recs, rec) }

// testEnv wires real services over the in-memory store.
type testEnv struct {
	store      *mock.MockFaceStore
	mirror     *profiles.Store
	enroller   *enroll.Service
	matcher    *recognition.Recognizer
	thresholds *config.ThresholdStore
	log        *recordingLog
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := mock.NewMockFaceStore()
	mirror := profiles.NewStore(store)
	pool := worker.NewPool(2)
	th := config.NewThresholdStore(config.Defaults().Thresholds)
	rl := &recordingLog{}
	return &testEnv{
		store:      store,
		mirror:     mirror,
		enroller:   enroll.NewService(fakeGate{}, pool, store, mirror),
		matcher:    recognition.NewRecognizer(fakeGate{}, pool, mirror, func() facematch.Thresholds { return th.Get().Match() }, rl),
		thresholds: th,
		log:        rl,
	}
}

func (e *testEnv) enrollEmbedding(t *testing.T, userID string, emb []float64) *enroll.Result {
	t.Helper()
	res, err := e.enroller.EnrollEmbedding(context.Background(), userID, emb)
	if err != nil {
		t.Fatalf("enroll %s: %v", userID, err)
	}
	return res
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// jsonRequest creates a request with a JSON body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest creates a request with one "image" part per entry of images
func multipartRequest(t *testing.T, method, path string, images []string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for i, img := range images {
		part, err := mw.CreateFormFile("image", "face"+strconv.Itoa(i)+".jpg")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		part.Write([]byte(img))
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%v'", expectedMessage, result["error"])
	}
}
