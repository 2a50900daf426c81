// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Upload constants
const (
	// MaxImageBytes is the largest accepted image upload (5 MB)
	MaxImageBytes = 5 << 20

	// MaxImagesPerEnrollment bounds the number of images in one enrollment request
	MaxImagesPerEnrollment = 10

	// MaxMultipartMemory is the in-memory budget for multipart parsing
	MaxMultipartMemory = 32 << 20
)

// Timeouts
const (
	// MatchTimeout bounds a single match request end to end
	MatchTimeout = 30 * time.Second

	// EnrollTimeout bounds a single enrollment request end to end
	EnrollTimeout = 60 * time.Second

	// ExtractionTimeout is the HTTP client timeout for the extraction service
	ExtractionTimeout = 60 * time.Second

	// ShutdownTimeout is how long serve waits for in-flight requests on shutdown
	ShutdownTimeout = 30 * time.Second
)

// Analyzer clamp bounds for suggested thresholds
const (
	// AnalyzerUserTolCap caps the suggested user tolerance
	AnalyzerUserTolCap = 0.55
	// AnalyzerMarginFloor floors the suggested margin
	AnalyzerMarginFloor = 0.05
	// AnalyzerFaceTolCap caps the suggested per-face tolerance
	AnalyzerFaceTolCap = 0.65
)
