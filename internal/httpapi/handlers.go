package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/mohamed-oubenma/smarTube/internal/keypool"
	"github.com/mohamed-oubenma/smarTube/internal/service"
	"github.com/mohamed-oubenma/smarTube/internal/supadata"
)

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		actions, err := s.runner.Actions(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, actions)
	case http.MethodPut:
		var req []service.Action
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		saved, err := s.runner.SaveActions(r.Context(), req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type runActionRequest struct {
	ActionID string `json:"action_id"`
	VideoURL string `json:"video_url"`
	Label    string `json:"label,omitempty"`
}

func (s *Server) handleRunAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req runActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.VideoURL == "" {
		writeError(w, http.StatusBadRequest, "missing video_url")
		return
	}
	if req.ActionID == "" {
		req.ActionID = service.DefaultActionID
	}

	result, err := s.runner.RunAction(r.Context(), req.ActionID, req.VideoURL, req.Label)
	if err != nil {
		writeError(w, actionErrorStatus(err), service.DeriveErrorMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type questionRequest struct {
	VideoURL string `json:"video_url"`
	Question string `json:"question"`
}

func (s *Server) handleQuestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.VideoURL == "" || strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "missing video_url or question")
		return
	}

	answer, err := s.runner.AskQuestion(r.Context(), req.VideoURL, req.Question)
	if err != nil {
		writeError(w, actionErrorStatus(err), service.DeriveErrorMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"answer": answer})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	videoURL := r.URL.Query().Get("url")
	if videoURL == "" {
		writeError(w, http.StatusBadRequest, "missing url parameter")
		return
	}
	forceRefresh := r.URL.Query().Get("refresh") == "1"

	data, err := s.transcripts.GetOrFetch(r.Context(), videoURL, forceRefresh)
	if err != nil {
		writeError(w, actionErrorStatus(err), service.DeriveErrorMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// keyResponse never carries the secret back out.
type keyResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	IsRateLimited bool   `json:"is_rate_limited"`
}

func toKeyResponses(keys []keypool.APIKey) []keyResponse {
	ret := make([]keyResponse, 0, len(keys))
	for _, key := range keys {
		ret = append(ret, keyResponse{ID: key.ID, Name: key.Name, IsRateLimited: key.IsRateLimited})
	}
	return ret
}

type addKeyRequest struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	if s.keys == nil {
		writeError(w, http.StatusNotImplemented, "key manager is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, toKeyResponses(s.keys.List()))
	case http.MethodPost:
		var req addKeyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		key, err := s.keys.Add(r.Context(), req.Name, req.Secret)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, keyResponse{ID: key.ID, Name: key.Name})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleKeyByID serves /api/keys/{id} and /api/keys/{id}/reset.
func (s *Server) handleKeyByID(w http.ResponseWriter, r *http.Request) {
	if s.keys == nil {
		writeError(w, http.StatusNotImplemented, "key manager is not configured")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/keys/")
	path = strings.TrimSuffix(path, "/")
	reset := false
	if strings.HasSuffix(path, "/reset") {
		path = strings.TrimSuffix(path, "/reset")
		reset = true
	}
	keyID, err := url.PathUnescape(path)
	if err != nil || keyID == "" {
		writeError(w, http.StatusBadRequest, "missing key id")
		return
	}

	switch {
	case reset && r.Method == http.MethodPost:
		if err := s.keys.ResetRateLimit(r.Context(), keyID); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case !reset && r.Method == http.MethodDelete:
		if err := s.keys.Remove(r.Context(), keyID); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// actionErrorStatus picks the HTTP status for a failed action or question.
// The missing-key sentinel is a configuration problem on the caller's side,
// everything else is an upstream failure.
func actionErrorStatus(err error) int {
	if errors.Is(err, service.ErrAPIKeysMissing) || supadata.IsFetchErrorType(err, supadata.ErrNoKeys) {
		return http.StatusConflict
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
