package polybot

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoCandidates is returned when a request carries no message text.
	ErrNoCandidates = errors.New("no message candidates")
	// ErrLimitTooSmall is returned when a length limit cannot hold any text next to its pagination marker.
	ErrLimitTooSmall = errors.New("limit too small for pagination marker")
	// ErrEmptyImage is returned for images without data.
	ErrEmptyImage = errors.New("image has no data")
)

// MissingConfigError is returned when required credentials are missing.
type MissingConfigError struct {
	Service   string
	Variables []string
}

func (e MissingConfigError) Error() string {
	if len(e.Variables) == 0 {
		return fmt.Sprintf("%s credentials not configured", e.Service)
	}
	return fmt.Sprintf("%s credentials not configured (missing %s)", e.Service, strings.Join(e.Variables, ", "))
}

// ValidationError captures service-specific validation issues.
type ValidationError struct {
	Service string
	Reason  string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Service, e.Reason)
}

// NoFittingMessageError is returned when no candidate fits a length limit.
type NoFittingMessageError struct {
	Limit    int
	Shortest int
}

func (e *NoFittingMessageError) Error() string {
	return fmt.Sprintf("no message fits within %d characters (shortest is %d)", e.Limit, e.Shortest)
}

// ImageTooLargeError is returned when an image cannot be shrunk under the size limit.
type ImageTooLargeError struct {
	Size  int64
	Limit int64
}

func (e *ImageTooLargeError) Error() string {
	return fmt.Sprintf("image too large: %d bytes exceeds limit of %d bytes", e.Size, e.Limit)
}

// UnsupportedImageError is returned when an image cannot be converted to any accepted type.
type UnsupportedImageError struct {
	MIMEType string
	Accepted []string
}

func (e *UnsupportedImageError) Error() string {
	return fmt.Sprintf("unsupported image type %q (accepted: %s)", e.MIMEType, strings.Join(e.Accepted, ", "))
}

// ServiceError wraps a failure reported by a network adapter.
type ServiceError struct {
	Service string
	// Temporary marks failures worth retrying later (rate limits, 5xx, timeouts).
	Temporary bool
	Err       error
}

func (e *ServiceError) Error() string {
	kind := "permanent"
	if e.Temporary {
		kind = "temporary"
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Service, kind, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// IsTemporary reports whether err carries a temporary ServiceError.
func IsTemporary(err error) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Temporary
}

// TemporaryStatus reports whether an HTTP status code signals a transient failure.
func TemporaryStatus(code int) bool {
	return code == 429 || code >= 500
}
