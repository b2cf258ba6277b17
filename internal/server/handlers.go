package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"whatbeats/internal/game"
	"whatbeats/internal/logging"
	"whatbeats/internal/types"
)

const maxBodyBytes = 4 << 10

type newGameRequest struct {
	SeedWord string `json:"seedWord"`
}

type guessRequest struct {
	SessionID string `json:"sessionId"`
	Guess     string `json:"guess"`
	Persona   string `json:"persona"`
}

type sessionResponse struct {
	SessionID   string   `json:"sessionId"`
	CurrentWord string   `json:"currentWord"`
	History     []string `json:"history"`
	Score       int      `json:"score"`
	GameOver    bool     `json:"gameOver"`
	Message     string   `json:"message,omitempty"`
}

type statsResponse struct {
	Word        string `json:"word"`
	GlobalCount int64  `json:"globalCount"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func sessionView(s *types.Session, msg string) sessionResponse {
	return sessionResponse{
		SessionID:   s.ID,
		CurrentWord: s.CurrentWord,
		History:     s.History,
		Score:       s.Score,
		GameOver:    s.GameOver,
		Message:     msg,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.engine.NewGame(r.Context(), req.SeedWord)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess, fmt.Sprintf("Game started! What beats '%s'?", sess.CurrentWord)))
}

func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	var req guessRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	out, err := s.engine.SubmitGuess(r.Context(), req.SessionID, req.Guess, personaOf(r, req.Persona))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, out)
	case errors.Is(err, game.ErrContentFlagged), errors.Is(err, game.ErrOracleUnavailable):
		// The outcome already carries a player-facing message.
		writeJSON(w, statusFor(err), out)
	default:
		writeError(w, err)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess, ""))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	word, n, err := s.engine.Stats(r.Context(), r.PathValue("word"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Word: word, GlobalCount: n})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.Reset(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess, "Game reset"))
}

// personaOf prefers the X-Persona header, then a bare Persona header, then
// the body field.
func personaOf(r *http.Request, body string) types.Persona {
	for _, v := range []string{r.Header.Get("X-Persona"), r.Header.Get("Persona"), body} {
		if strings.TrimSpace(v) != "" {
			return types.ParsePersona(v)
		}
	}
	return ""
}

// decodeBody reads a JSON request body. An empty body is accepted when
// optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: malformed request body: %v", game.ErrInvalidInput, err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrInvalidInput), errors.Is(err, game.ErrContentFlagged):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrSessionConflict):
		return http.StatusConflict
	case errors.Is(err, game.ErrOracleUnavailable), errors.Is(err, game.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.Get(logging.CategoryHTTP).Error("Request failed: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.HTTPDebug("Failed to write response: %v", err)
	}
}
