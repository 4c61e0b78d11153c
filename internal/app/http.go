package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zzdxppq/shop-video-scout/internal/auth"
	"github.com/zzdxppq/shop-video-scout/internal/rbac"
	"github.com/zzdxppq/shop-video-scout/internal/script"
	"github.com/zzdxppq/shop-video-scout/internal/store"
	"github.com/zzdxppq/shop-video-scout/internal/util"
)

// Envelope wraps every /api/v1 response.
type Envelope struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *slog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"store": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["store"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	parts := splitPath(r.URL.Path)
	// api v1 tasks {taskId} script|regenerate-script [history]
	if len(parts) < 5 || parts[0] != "api" || parts[1] != "v1" || parts[2] != "tasks" {
		writeError(w, domainError(http.StatusNotFound, http.StatusNotFound, "Not found", nil))
		return
	}
	taskID, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil || taskID <= 0 {
		writeError(w, domainError(http.StatusBadRequest, http.StatusBadRequest, "invalid task id", nil))
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	switch {
	case len(parts) == 5 && parts[4] == "script":
		s.handleScript(w, r, session, taskID)
	case len(parts) == 6 && parts[4] == "script" && parts[5] == "history":
		if r.Method != http.MethodGet {
			writeError(w, errMethodNotAllowed)
			return
		}
		if !s.authorize(w, r, session, rbac.ActionRead) {
			return
		}
		entries, err := s.service.History(r.Context(), taskID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeData(w, http.StatusOK, entries)
	case len(parts) == 5 && parts[4] == "regenerate-script":
		if r.Method != http.MethodPost {
			writeError(w, errMethodNotAllowed)
			return
		}
		if !s.authorize(w, r, session, rbac.ActionRegenerate) {
			return
		}
		doc, err := s.service.RegenerateScript(r.Context(), session, taskID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeData(w, http.StatusOK, doc)
	default:
		writeError(w, domainError(http.StatusNotFound, http.StatusNotFound, "Not found", nil))
	}
}

var errMethodNotAllowed = domainError(http.StatusMethodNotAllowed, http.StatusMethodNotAllowed, "Method not allowed", nil)

func (s *HTTPServer) handleScript(w http.ResponseWriter, r *http.Request, session Session, taskID int64) {
	switch r.Method {
	case http.MethodGet:
		if !s.authorize(w, r, session, rbac.ActionRead) {
			return
		}
		doc, err := s.service.GetScript(r.Context(), taskID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeData(w, http.StatusOK, doc)

	case http.MethodPut:
		if !s.authorize(w, r, session, rbac.ActionEdit) {
			return
		}
		var body struct {
			Paragraphs []script.ParagraphText `json:"paragraphs"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, domainError(http.StatusBadRequest, http.StatusBadRequest, err.Error(), nil))
			return
		}
		ifMatch, err := parseIfMatch(r.Header.Get("If-Match"))
		if err != nil {
			writeError(w, domainError(http.StatusBadRequest, http.StatusBadRequest, err.Error(), nil))
			return
		}
		doc, err := s.service.SaveScript(r.Context(), session, taskID, ifMatch, body.Paragraphs)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeData(w, http.StatusOK, doc)

	case http.MethodPost:
		if !s.authorize(w, r, session, rbac.ActionSeed) {
			return
		}
		var body struct {
			Paragraphs []script.Paragraph `json:"paragraphs"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, domainError(http.StatusBadRequest, http.StatusBadRequest, err.Error(), nil))
			return
		}
		doc, err := s.service.SeedScript(r.Context(), session, taskID, body.Paragraphs)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeData(w, http.StatusCreated, doc)

	default:
		writeError(w, errMethodNotAllowed)
	}
}

// requireSession resolves the bearer token. With auth disabled every
// caller acts as admin.
func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	if !s.service.AuthEnabled() {
		return Session{Subject: "anonymous", Role: string(rbac.RoleAdmin)}, true
	}
	token := bearerToken(r)
	if token == "" {
		writeError(w, domainError(http.StatusUnauthorized, http.StatusUnauthorized, "Unauthorized", nil))
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(token)
	if err != nil {
		s.fail(w, r, err)
		return Session{}, false
	}
	return session, true
}

// fail writes the error envelope and logs unexpected failures.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _, _, _ := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "request_id", requestID(r.Context()), "error", err)
	}
	writeError(w, err)
}

func (s *HTTPServer) authorize(w http.ResponseWriter, r *http.Request, session Session, action rbac.Action) bool {
	if s.service.Can(session.Role, action) {
		return true
	}
	s.logger.Warn("request forbidden",
		"request_id", requestID(r.Context()),
		"subject", session.Subject,
		"role", session.Role,
		"action", string(action),
	)
	writeError(w, domainError(http.StatusForbidden, http.StatusForbidden, "Forbidden", nil))
	return false
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = util.NewRequestID()
		}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", id)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, If-Match, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{
		Code:      0,
		Message:   "success",
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

func writeError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeJSON(w, status, Envelope{
		Code:      code,
		Message:   message,
		Data:      details,
		Timestamp: time.Now().UnixMilli(),
	})
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// parseIfMatch reads a quoted or bare version number. An absent header
// yields nil.
func parseIfMatch(header string) (*int, error) {
	value := strings.TrimSpace(header)
	if value == "" || value == "*" {
		return nil, nil
	}
	value = strings.TrimPrefix(value, "W/")
	value = strings.Trim(value, `"`)
	version, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid If-Match header")
	}
	return &version, nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status, code int, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, http.StatusNotFound, MsgNotFound, nil
	case errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict, http.StatusConflict, MsgVersionConflict, nil
	case errors.Is(err, store.ErrExists):
		return http.StatusConflict, http.StatusConflict, MsgAlreadyExists, nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, http.StatusUnauthorized, "Unauthorized", nil
	}
	return http.StatusInternalServerError, http.StatusInternalServerError, "Server error", nil
}
