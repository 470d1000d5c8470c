package backend

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// APIError is a normalized backend failure. Status carries the upstream HTTP
// status code so handlers can propagate it instead of a blanket 500.
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

// messageFields is the ordered fallback of field names the backend has been
// observed to carry its human-readable message under.
var messageFields = []string{"message", "error", "detail", "error_description"}

// extractMessage pulls the human-readable message out of a backend error
// body, trying each known field name in order. Non-JSON bodies fall through
// to a trimmed raw string.
func extractMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if gjson.ValidBytes(body) {
		for _, field := range messageFields {
			if v := gjson.GetBytes(body, field); v.Exists() && v.Type == gjson.String && v.Str != "" {
				return v.Str
			}
		}
		// Some endpoints nest the message one level down.
		for _, field := range messageFields {
			if v := gjson.GetBytes(body, "error."+field); v.Exists() && v.Type == gjson.String && v.Str != "" {
				return v.Str
			}
		}
	}
	return strings.TrimSpace(string(body))
}

// errorCode extracts the machine-readable error code, if the backend sent one.
func errorCode(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, field := range []string{"code", "error_code", "error.code"} {
		if v := gjson.GetBytes(body, field); v.Exists() && v.Type == gjson.String {
			return v.Str
		}
	}
	return ""
}
