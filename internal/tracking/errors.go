package tracking

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Error codes returned by the tracking server.
const (
	CodeResourceDoesNotExist = "RESOURCE_DOES_NOT_EXIST"
	CodeResourceAlreadyExist = "RESOURCE_ALREADY_EXISTS"
	CodeInvalidParameter     = "INVALID_PARAMETER_VALUE"
	CodeInternalError        = "INTERNAL_ERROR"
)

var ErrNoActiveRun = errors.New("no run has been started by this client")

// APIError is a non-2xx reply from the tracking server.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error_code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("tracking server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("tracking server returned %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsNotFound reports whether err is the server saying the resource is missing.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == CodeResourceDoesNotExist || apiErr.StatusCode == http.StatusNotFound
}

// IsAlreadyExists reports whether err is a create conflict.
func IsAlreadyExists(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeResourceAlreadyExist
}
