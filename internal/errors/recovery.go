package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/copyleftdev/sumfunc/internal/logging"
)

// HTTPError is an error that carries the HTTP status it should be reported with.
type HTTPError struct {
	Status int
	Err    error
}

func (e *HTTPError) Error() string { return e.Err.Error() }
func (e *HTTPError) Unwrap() error { return e.Err }

// WithStatus attaches an HTTP status to err.
func WithStatus(err error, status int) error {
	if err == nil {
		return nil
	}
	return &HTTPError{Status: status, Err: err}
}

// StatusCode returns the status attached anywhere in err's chain, or 500.
func StatusCode(err error) int {
	var he *HTTPError
	if stderrors.As(err, &he) {
		return he.Status
	}
	return http.StatusInternalServerError
}

// Fields returns log fields describing err: its message and status, and the
// wrap stack when there is one.
func Fields(err error) map[string]interface{} {
	fields := map[string]interface{}{
		"error":  err.Error(),
		"status": StatusCode(err),
	}
	if stack := StackTrace(err); len(stack) > 0 {
		fields["stack"] = strings.Join(stack, "\n")
	}
	return fields
}

// WriteJSON writes err as {"error": "..."} with its status code.
func WriteJSON(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusCode(err))
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// RecoveryMiddleware returns a middleware that recovers from panics.
func RecoveryMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("Recovered from panic", map[string]interface{}{
					"error":  fmt.Sprint(rec),
					"stack":  string(debug.Stack()),
					"method": r.Method,
					"path":   r.URL.Path,
					"query":  r.URL.RawQuery,
				})

				WriteJSON(w, &HTTPError{
					Status: http.StatusInternalServerError,
					Err:    New(http.StatusText(http.StatusInternalServerError)),
				})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
