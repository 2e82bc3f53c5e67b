package errors

import (
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ErrorHandler wraps an http.Handler and turns panics into a 500 envelope.
// The envelope is skipped when the handler already wrote a status.
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww, ok := w.(middleware.WrapResponseWriter)
			if !ok {
				ww = middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			}

			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					requestID := w.Header().Get("X-Request-ID")
					logger.Error("panic recovered",
						zap.Any("error", err),
						zap.ByteString("stacktrace", debug.Stack()),
						zap.String("request_id", requestID),
						zap.Int("status_written", ww.Status()),
					)

					if ww.Status() == 0 {
						WriteError(ww, NewInternalError(requestID, nil))
					}
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// LogError logs an error with its context. Upstream failures are logged with
// the upstream status and the full upstream body for diagnostics.
func LogError(logger *zap.Logger, err error, requestID string) {
	cErr, ok := err.(*CopilotError)
	if !ok {
		logger.Error("unexpected error",
			zap.Error(err),
			zap.String("request_id", requestID),
		)
		return
	}

	switch cErr.Type {
	case UpstreamError:
		logger.Error("upstream API error",
			zap.Int("status", cErr.Code),
			zap.ByteString("body", cErr.Payload),
			zap.String("request_id", requestID),
		)
	case ValidationError, RateLimitError, PayloadTooLargeError, NotFoundError, MethodNotAllowedError:
		logger.Info("request rejected",
			zap.String("error_type", string(cErr.Type)),
			zap.String("message", cErr.Message),
			zap.Int("code", cErr.Code),
			zap.String("request_id", requestID),
		)
	default:
		logger.Error("request error",
			zap.String("error_type", string(cErr.Type)),
			zap.String("message", cErr.Message),
			zap.Int("code", cErr.Code),
			zap.String("request_id", requestID),
			zap.NamedError("cause", cErr.err),
		)
	}
}
