package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"sprintboard/api/internal/auth"
	"sprintboard/api/internal/authpw"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/auth/register" {
		s.handleRegister(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/auth/login" {
		s.handleLogin(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/auth/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "refresh token invalid")
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/auth/logout" {
		session := Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				session = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), session, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) > 0 && parts[0] == "stories" {
		s.handleStories(w, r, parts)
		return
	}

	if len(parts) == 2 && parts[0] == "analytics" && parts[1] == "archive" && r.Method == http.MethodGet {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		result, err := s.service.Summarize(r.Context(), session, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	if len(parts) == 3 && parts[0] == "analytics" && parts[1] == "archive" && parts[2] == "export" && r.Method == http.MethodGet {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		s.handleAnalyticsExport(w, r, session)
		return
	}

	if len(parts) == 2 && parts[0] == "archive" && r.Method == http.MethodDelete {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		if err := s.service.DeleteArchived(r.Context(), session, parts[1]); err != nil {
			writeMappedError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeError(w, http.StatusNotFound, "not found")
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := s.service.Register(r.Context(), body.Username, body.Password, body.Role)
	if err != nil {
		if errors.Is(err, authpw.ErrUsernameTaken) {
			writeError(w, http.StatusConflict, "username already taken")
			return
		}
		var domainErr *DomainError
		if errors.As(err, &domainErr) {
			writeMappedError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Username == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	session, err := s.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		if errors.Is(err, authpw.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleStories(w http.ResponseWriter, r *http.Request, parts []string) {
	// GET /stories
	if len(parts) == 1 && r.Method == http.MethodGet {
		result, err := s.service.ListStories(r.Context())
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	// POST /stories
	if len(parts) == 1 && r.Method == http.MethodPost {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		var input CreateStoryInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		result, err := s.service.CreateStory(r.Context(), session, input)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
		return
	}

	// GET /stories/search?q=
	if len(parts) == 2 && parts[1] == "search" && r.Method == http.MethodGet {
		if _, ok := s.requireSession(w, r); !ok {
			return
		}
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			writeError(w, http.StatusBadRequest, "q is required")
			return
		}
		writeJSON(w, http.StatusOK, s.service.SearchStories(r.Context(), query, 20))
		return
	}

	// PATCH /stories/:id
	if len(parts) == 2 && r.Method == http.MethodPatch {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		var body struct {
			Status   *string `json:"status"`
			Estimate *int    `json:"estimate"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if body.Status == nil && body.Estimate == nil {
			writeError(w, http.StatusBadRequest, "status or estimate is required")
			return
		}

		result := map[string]any{"id": parts[1]}
		if body.Status != nil {
			updated, err := s.service.SetStatus(r.Context(), session, parts[1], *body.Status)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			result["status"] = updated["status"]
		}
		if body.Estimate != nil {
			updated, err := s.service.SetEstimate(r.Context(), session, parts[1], *body.Estimate)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			result["estimate"] = updated["estimate"]
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	// DELETE /stories/:id
	if len(parts) == 2 && r.Method == http.MethodDelete {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		if err := s.service.RemoveStory(r.Context(), session, parts[1]); err != nil {
			writeMappedError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// POST /stories/:id/complete
	if len(parts) == 3 && parts[2] == "complete" && r.Method == http.MethodPost {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		result, err := s.service.Archive(r.Context(), session, parts[1])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	// POST /stories/:id/tasks
	if len(parts) == 3 && parts[2] == "tasks" && r.Method == http.MethodPost {
		if _, ok := s.requireSession(w, r); !ok {
			return
		}
		var body struct {
			Title string `json:"title"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		result, err := s.service.AddTask(r.Context(), parts[1], body.Title)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
		return
	}

	// PATCH /stories/:sid/tasks/:tid
	if len(parts) == 4 && parts[2] == "tasks" && r.Method == http.MethodPatch {
		if _, ok := s.requireSession(w, r); !ok {
			return
		}
		var body struct {
			Done *bool `json:"done"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if body.Done == nil {
			writeError(w, http.StatusBadRequest, "done flag is required")
			return
		}
		result, err := s.service.ToggleTask(r.Context(), parts[1], parts[3], *body.Done)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	// DELETE /stories/:sid/tasks/:tid
	if len(parts) == 4 && parts[2] == "tasks" && r.Method == http.MethodDelete {
		if _, ok := s.requireSession(w, r); !ok {
			return
		}
		if err := s.service.RemoveTask(r.Context(), parts[1], parts[3]); err != nil {
			writeMappedError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeError(w, http.StatusNotFound, "not found")
}

func (s *HTTPServer) handleAnalyticsExport(w http.ResponseWriter, r *http.Request, session Session) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "pdf"
	}
	result, err := s.service.ExportAnalytics(r.Context(), session, r.URL.Query().Get("from"), r.URL.Query().Get("to"), format)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "session lookup failed")
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"id":           session.UserID,
		"username":     session.UserName,
		"role":         session.Role,
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"message": message})
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, message := mapError(err)
	writeError(w, status, message)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
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

// mapError translates failures into the {message} error body contract.
// Persistence and unexpected errors are logged server-side and surfaced as a
// generic message, never leaking internals.
func mapError(err error) (int, string) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Message
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "not found"
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "unauthorized"
	}
	log.Printf("internal error: %v", err)
	return http.StatusInternalServerError, "internal server error"
}
