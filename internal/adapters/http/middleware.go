package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
	"github.com/kirillkom/portfolio-chatbot/internal/core/usecase"
)

const requestIDHeader = "X-Request-Id"

type requestIDContextKey struct{}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	requestID, _ := ctx.Value(requestIDContextKey{}).(string)
	return requestID
}

// requestIDMiddleware echoes a caller id only when it uses the session id charset
// and length; anything else is replaced so log lines stay parseable.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if !domain.ValidSessionID(requestID) {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDContextKey{}, requestID)
		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLog collects attributes handlers learn while serving, for the access log line.
type requestLog struct {
	sessionID string
}

type requestLogContextKey struct{}

// noteSession records which chat session a request touched.
func noteSession(r *http.Request, sessionID string) {
	if entry, ok := r.Context().Value(requestLogContextKey{}).(*requestLog); ok {
		entry.sessionID = sessionID
	}
}

// channelForPath names the surface a request belongs to, matching the chat channel labels.
func channelForPath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/"):
		return usecase.ChannelAPI
	case strings.HasPrefix(path, "/v1/"):
		return usecase.ChannelOpenAI
	case path == "/mcp" || strings.HasPrefix(path, "/mcp/"):
		return usecase.ChannelMCP
	case isOperationalPath(path):
		return "ops"
	default:
		return usecase.ChannelUI
	}
}

func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		entry := &requestLog{}
		r = r.WithContext(context.WithValue(r.Context(), requestLogContextKey{}, entry))

		next.ServeHTTP(recorder, r)

		logAttrs := []any{
			"request_id", requestIDFromContext(r.Context()),
			"channel", channelForPath(r.URL.Path),
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.statusCode,
			"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
			"bytes", recorder.bytesWritten,
			"client", clientKey(r),
		}
		if entry.sessionID != "" {
			logAttrs = append(logAttrs, "session_id", entry.sessionID)
		}

		switch {
		case recorder.statusCode >= 500:
			slog.Error("http_request", logAttrs...)
		case recorder.statusCode >= 400:
			slog.Warn("http_request", logAttrs...)
		case isOperationalPath(r.URL.Path):
			slog.Debug("http_request", logAttrs...)
		default:
			slog.Info("http_request", logAttrs...)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += n
	return n, err
}

// Flush keeps SSE completions and MCP streams working behind the recorder.
func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
