package database

import (
	"context"
	"errors"
	"sync"
)

var (
	backendMu sync.RWMutex
	backend   Backend
)

// RegisterBackend sets the active storage backend.
// This is called by cmd after the postgres or mariadb package opened a pool, to avoid import cycles.
func RegisterBackend(b Backend) {
	backendMu.Lock()
	defer backendMu.Unlock()
	backend = b
}

// IsInitialized returns whether a backend has been registered.
func IsInitialized() bool {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return backend != nil
}

// GetFaceStore returns the registered FaceStore.
func GetFaceStore(ctx context.Context) (FaceStore, error) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	if backend == nil {
		return nil, errors.New("database backend not initialized: DATABASE_URL is required")
	}
	return backend, nil
}

// GetProfileReader returns the registered backend as a read-only ProfileReader.
func GetProfileReader(ctx context.Context) (ProfileReader, error) {
	return GetFaceStore(ctx)
}

// CloseBackend closes and unregisters the active backend.
func CloseBackend() error {
	backendMu.Lock()
	defer backendMu.Unlock()
	if backend == nil {
		return nil
	}
	err := backend.Close()
	backend = nil
	return err
}
