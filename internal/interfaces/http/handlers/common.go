// Package handlers implements the HTTP endpoints of the API server.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

// DefaultMaxBodySize caps request bodies when the server config leaves it
// unset.
const DefaultMaxBodySize int64 = 1 << 20

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeAppError maps err to its HTTP status through the error code table.
// Server-side failures are logged and answered with a generic message so
// internals do not leak to callers.
func writeAppError(w http.ResponseWriter, logger logging.Logger, err error) {
	status := errors.HTTPStatus(err)
	code := errors.GetCode(err)

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", logging.String("code", string(code)), logging.Err(err))
		writeJSON(w, status, ErrorResponse{
			Code:    string(code),
			Message: errors.DefaultMessageForCode(code),
		})
		return
	}

	resp := ErrorResponse{Code: string(code), Message: err.Error()}
	var ae *errors.AppError
	if errors.As(err, &ae) {
		resp.Message = ae.Message
		resp.Detail = ae.Detail
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a size-limited JSON body into v. Unknown fields are
// rejected so typos in field names surface as 400s.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v interface{}) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return errors.New(errors.ErrCodeBatchTooLarge, "request body too large").
				WithDetail("limit=" + strconv.FormatInt(maxBytes, 10))
		case errors.Is(err, io.EOF):
			return errors.InvalidParam("request body is empty")
		default:
			return errors.InvalidParam("invalid JSON body").WithDetail(err.Error())
		}
	}
	if dec.More() {
		return errors.InvalidParam("request body must hold a single JSON value")
	}
	return nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.InvalidParam(name + " must be an integer").WithDetail(raw)
	}
	return n, nil
}
