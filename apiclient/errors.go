package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/family-budget-client/internal/errors"
	"github.com/jrsteele09/family-budget-client/internal/utils"
)

// APIError is returned for every non-2xx response. The body is kept verbatim so callers
// can inspect field errors the way the server reported them.
type APIError struct {
	Status    int
	Method    string
	Path      string
	RequestID string
	Body      []byte
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
	if d := e.Detail(); d != "" {
		msg += ": " + d
	}
	return msg
}

// Unauthorized reports whether the server rejected the credential.
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// Detail returns the "detail" member of the error payload, if any.
func (e *APIError) Detail() string {
	return e.FieldError("detail")
}

// FieldError returns the first message reported for a field. The backend reports either a
// plain string ({"detail": "..."}) or a list of strings ({"email": ["..."]}).
func (e *APIError) FieldError(field string) string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(e.Body, &payload); err != nil {
		return ""
	}
	raw, ok := payload[field]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}

// Message picks a user-facing message for err: the first non-empty field error among
// fields, in the given order, or fallback when err is not an *APIError or carries none of
// them. Local validation failures report their own message.
func Message(err error, fallback string, fields ...string) string {
	var invalid *errors.ValidationError
	if errors.As(err, &invalid) {
		return invalid.Message
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return fallback
	}
	messages := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		messages = append(messages, apiErr.FieldError(f))
	}
	messages = append(messages, fallback)
	return strings.TrimSpace(utils.FirstNonEmpty(messages...))
}

// StatusCode returns the HTTP status carried by err, or 0 for transport failures.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
