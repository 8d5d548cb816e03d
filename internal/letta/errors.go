package letta

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/containerd/errdefs/pkg/errhttp"
)

// APIError is a non-2xx response from the platform.
// It unwraps to the errdefs class matching the HTTP status, so callers can
// use errdefs.IsNotFound and friends.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("letta: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("letta: %d %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return errhttp.ToNative(e.Status)
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		var detail string
		if json.Unmarshal(payload.Detail, &detail) != nil && len(payload.Detail) > 0 {
			detail = string(payload.Detail)
		}
		switch {
		case detail != "":
			apiErr.Message = detail
		case payload.Message != "":
			apiErr.Message = payload.Message
		case payload.Error != "":
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	if len(apiErr.Message) > 200 {
		apiErr.Message = apiErr.Message[:200]
	}
	return apiErr
}
