// internal/types.go - Common types for internal packages
package internal

import (
	"time"

	"github.com/paulmach/orb/geojson"
)

// Error represents application-specific errors with a machine-readable code
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new application error
func NewError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ErrorCode constants for common error types
const (
	ErrorCodeInvalidBounds = "INVALID_BOUNDS"
	ErrorCodeDetection     = "DETECTION_ERROR"
	ErrorCodeNetwork       = "NETWORK_ERROR"
	ErrorCodeValidation    = "VALIDATION_ERROR"
	ErrorCodeConfig        = "CONFIG_ERROR"
	ErrorCodeNotFound      = "NOT_FOUND"
	ErrorCodeTimeout       = "TIMEOUT_ERROR"
	ErrorCodeFileSystem    = "FILESYSTEM_ERROR"
)

// ErrorCodeOf extracts the machine-readable code from an error, if present
func ErrorCodeOf(err error) string {
	if appErr, ok := err.(*Error); ok {
		return appErr.Code
	}
	return ""
}

// PoolDetection is a single detected pool projected into geographic space
type PoolDetection struct {
	Geometry   *geojson.Geometry `json:"geometry"`
	Confidence float64           `json:"confidence"`
	ClassID    int               `json:"classId,omitempty"`
}

// DetectionResult is the outcome of one pipeline run for a parcel
type DetectionResult struct {
	ParcelID       string          `json:"parcelId"`
	Pools          []PoolDetection `json:"pools"`
	ProcessingTime float64         `json:"processingTime"`
	Cached         bool            `json:"cached"`
}

// CacheStatistics reports the state of the detection result cache
type CacheStatistics struct {
	Size          int        `json:"size"`
	Hits          int64      `json:"hits"`
	Misses        int64      `json:"misses"`
	TotalRequests int64      `json:"total_requests"`
	HitRate       float64    `json:"hit_rate"`
	OldestEntry   *time.Time `json:"oldest_entry,omitempty"`
}
