package httpapp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// withRequestLog tags every request with an id, recovers panics and logs
// one line per request once the handler returns.
func (s *Server) withRequestLog(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		r = r.WithContext(ctx)
		rec := &statusRecorder{ResponseWriter: w}

		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				s.log.Error(ctx, "panic", "request_id", id, "panic", p)
				if rec.status == 0 {
					writeError(rec, http.StatusInternalServerError, errors.New("internal error"))
				}
			}
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			args := []any{
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration", time.Since(start),
			}
			if status >= http.StatusInternalServerError {
				s.log.Warn(ctx, "request", args...)
				return
			}
			s.log.Info(ctx, "request", args...)
		}()

		next(rec, r)
	})
}
