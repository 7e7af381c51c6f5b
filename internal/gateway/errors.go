package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// Error is a failed gateway call with retry classification.
type Error struct {
	// StatusCode is the HTTP status returned by the gateway.
	StatusCode int
	// Message is the error description returned by the gateway.
	Message string
	// Permanent indicates the call will not succeed on retry.
	Permanent bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway: status %d: %s", e.StatusCode, e.Message)
}

// IsPermanent returns true if err is a gateway failure that should not be
// retried.
func IsPermanent(err error) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Permanent
	}
	return false
}

// ClassifyHTTPError creates an Error from an HTTP status code and response
// body. It returns nil for 2xx statuses.
func ClassifyHTTPError(statusCode int, body string) *Error {
	ge := &Error{
		StatusCode: statusCode,
		Message:    truncate(body, 512),
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil

	case statusCode == 429:
		// Rate limited.
		ge.Permanent = false

	case statusCode >= 500:
		ge.Permanent = containsPermanentIndicator(body)

	default:
		// 401, 403, 404 and every other 4xx.
		ge.Permanent = statusCode >= 400 && statusCode < 500
	}

	return ge
}

// classifyRejection builds an Error for a 200 response whose body reports
// status false.
func classifyRejection(reason string) *Error {
	return &Error{
		StatusCode: 200,
		Message:    truncate(reason, 512),
		Permanent:  containsPermanentIndicator(reason),
	}
}

func containsPermanentIndicator(body string) bool {
	lower := strings.ToLower(body)
	permanentPatterns := []string{
		"invalid token",
		"token invalid",
		"invalid number",
		"number not registered",
		"not registered on whatsapp",
		"device disconnected",
		"unauthorized",
	}
	for _, pattern := range permanentPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
