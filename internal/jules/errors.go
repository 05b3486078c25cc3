package jules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// Category is the closed set of user-facing failure kinds.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryMissingCredential
	CategoryBadRequest
	CategoryUnauthorized
	CategoryForbidden
	CategoryNotFound
	CategoryRateLimited
	CategoryHTTPStatus
	CategoryTimeout
)

// String returns a stable label suitable for logs and metric attributes.
func (c Category) String() string {
	switch c {
	case CategoryUnknown:
		return "unknown"
	case CategoryMissingCredential:
		return "missing_credential"
	case CategoryBadRequest:
		return "bad_request"
	case CategoryUnauthorized:
		return "unauthorized"
	case CategoryForbidden:
		return "forbidden"
	case CategoryNotFound:
		return "not_found"
	case CategoryRateLimited:
		return "rate_limited"
	case CategoryHTTPStatus:
		return "http_status"
	case CategoryTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// noDetail is used when an error response carries no body at all.
const noDetail = "No additional error info from server."

// TimeoutMessage is the text shown for a request exceeding the client timeout.
const TimeoutMessage = "Error: Request timed out. Please try again."

// Failure is a classified error.
type Failure struct {
	Category Category

	// Status is the HTTP status code for HTTP categories, else 0.
	Status int

	// Detail is the best-effort server explanation for HTTP categories.
	Detail string

	// Err is the original error.
	Err error
}

// Classify maps any error returned by [Client.Call] onto a [Failure].
// A nil error classifies as [CategoryUnknown].
func Classify(err error) Failure {
	f := Failure{Category: CategoryUnknown, Err: err}

	var missing *MissingCredentialError
	if errors.As(err, &missing) {
		f.Category = CategoryMissingCredential
		return f
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		f.Status = httpErr.StatusCode
		f.Detail = errorDetail(httpErr.Body)
		switch httpErr.StatusCode {
		case http.StatusBadRequest:
			f.Category = CategoryBadRequest
		case http.StatusUnauthorized:
			f.Category = CategoryUnauthorized
		case http.StatusForbidden:
			f.Category = CategoryForbidden
		case http.StatusNotFound:
			f.Category = CategoryNotFound
		case http.StatusTooManyRequests:
			f.Category = CategoryRateLimited
		default:
			f.Category = CategoryHTTPStatus
		}
		return f
	}

	if errors.Is(err, ErrTimeout) {
		f.Category = CategoryTimeout
	}
	return f
}

// Message renders the human-readable diagnosis for f.
func (f Failure) Message() string {
	switch f.Category {
	case CategoryMissingCredential:
		var missing *MissingCredentialError
		if errors.As(f.Err, &missing) {
			return missing.Error()
		}
		return (&MissingCredentialError{Env: DefaultAPIKeyEnv}).Error()
	case CategoryBadRequest:
		return fmt.Sprintf("Error: Bad Request (400). Check the parameters. Detail: %s", f.Detail)
	case CategoryUnauthorized:
		return fmt.Sprintf("Error: Unauthorized (401). Ensure %s is correct. Detail: %s", DefaultAPIKeyEnv, f.Detail)
	case CategoryForbidden:
		return fmt.Sprintf("Error: Forbidden (403). You don't have access to this resource. Detail: %s", f.Detail)
	case CategoryNotFound:
		return fmt.Sprintf("Error: Not Found (404). The requested resource doesn't exist. Detail: %s", f.Detail)
	case CategoryRateLimited:
		return fmt.Sprintf("Error: Rate limit exceeded (429). Please wait before making more requests. Detail: %s", f.Detail)
	case CategoryHTTPStatus:
		return fmt.Sprintf("Error: API request failed with status %d. Detail: %s", f.Status, f.Detail)
	case CategoryTimeout:
		return TimeoutMessage
	case CategoryUnknown:
		return "Error: Unexpected error occurred: " + describeCause(f.Err)
	}
	return "Error: Unexpected error occurred: " + describeCause(f.Err)
}

// Describe classifies err and returns its message.
func Describe(err error) string {
	return Classify(err).Message()
}

func describeCause(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// errorDetail prefers the Google-style error.message field, then the whole
// body as compact JSON, then a fixed fallback.
func errorDetail(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return noDetail
	}
	if gjson.ValidBytes(body) {
		if msg, ok := scalarMessage(gjson.GetBytes(body, "error.message")); ok {
			return msg
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, body); err == nil {
			return buf.String()
		}
	}
	quoted, err := json.Marshal(string(body))
	if err != nil {
		return noDetail
	}
	return string(quoted)
}

// scalarMessage accepts a non-empty string, a non-zero number or true as
// the error message. Numbers keep their literal form.
func scalarMessage(r gjson.Result) (string, bool) {
	switch r.Type {
	case gjson.String:
		return r.Str, r.Str != ""
	case gjson.Number:
		return r.Raw, r.Num != 0
	case gjson.True:
		return "true", true
	default:
		return "", false
	}
}
