package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/kozaktomas/face-gate/internal/database"
)

func vec(hot int) []float32 {
	v := make([]float32, 128)
	v[hot] = 1
	return v
}

func TestMockFaceStore_AddAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMockFaceStore()

	faces := []database.StoredFace{{Embedding: vec(0)}, {Embedding: vec(1)}}
	state, err := m.AddFaces(ctx, "u1", faces)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(state.Faces) != 2 || state.User.Centroid == nil {
		t.Fatalf("unexpected state %+v", state)
	}
	if faces[0].ID == "" {
		t.Error("expected generated ID to be written back")
	}

	state, err = m.DeleteFace(ctx, faces[0].ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(state.Faces) != 1 || state.User.Centroid[1] != 1 {
		t.Errorf("expected centroid of remaining face, got %v", state.User.Centroid[:2])
	}

	state, err = m.DeleteFace(ctx, faces[1].ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.User.Centroid != nil {
		t.Error("expected nil centroid after deleting every face")
	}

	if _, err := m.DeleteFace(ctx, "nope"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMockFaceStore_ErrorInjection(t *testing.T) {
	m := NewMockFaceStore()
	m.AddFacesError = errors.New("boom")

	if _, err := m.AddFaces(context.Background(), "u1", []database.StoredFace{{Embedding: vec(0)}}); err == nil {
		t.Fatal("expected injected error")
	}
	if _, err := m.GetUser(context.Background(), "u1"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("failed write must not create the user, got %v", err)
	}
	if m.Calls.AddFaces != 1 {
		t.Errorf("expected 1 AddFaces call, got %d", m.Calls.AddFaces)
	}
}
