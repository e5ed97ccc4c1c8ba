package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cresceapp/cresce/internal/models"
)

// getStateHandler handles GET /state?user_id=...
func (s *Server) getStateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	userID, ok := s.requireUserID(w, r.URL.Query().Get("user_id"))
	if !ok {
		return
	}
	cs, err := s.engine.GetState(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(cs))
}

// updateStateRequest is the body of POST /state/update.
type updateStateRequest struct {
	UserID string             `json:"user_id"`
	Update models.StateUpdate `json:"update"`
}

// updateStateHandler handles POST /state/update
func (s *Server) updateStateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req updateStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("updateStateHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	userID, ok := s.requireUserID(w, req.UserID)
	if !ok {
		return
	}
	cs, err := s.engine.UpdateState(r.Context(), userID, req.Update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(cs))
}

// transitionRequest is the body of POST /transition.
type transitionRequest struct {
	UserID string              `json:"user_id"`
	To     models.StateType    `json:"to"`
	Update *models.StateUpdate `json:"update,omitempty"`
}

// transitionResponse bundles the new state with the target state's config.
type transitionResponse struct {
	State  *models.ConversationState `json:"state"`
	Config models.StateConfig        `json:"config"`
}

// transitionHandler handles POST /transition
func (s *Server) transitionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("transitionHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	userID, ok := s.requireUserID(w, req.UserID)
	if !ok {
		return
	}
	cs, cfg, err := s.engine.Transition(r.Context(), userID, req.To, req.Update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(transitionResponse{State: cs, Config: cfg}))
}

// buttonRequest is the body of POST /button.
type buttonRequest struct {
	UserID   string `json:"user_id"`
	ButtonID string `json:"button_id"`
}

// buttonHandler handles POST /button
func (s *Server) buttonHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req buttonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("buttonHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	userID, ok := s.requireUserID(w, req.UserID)
	if !ok {
		return
	}
	outcome, err := s.engine.ResolveButton(r.Context(), userID, req.ButtonID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(outcome))
}

// bufferAddRequest is the body of POST /buffer/add.
type bufferAddRequest struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
}

// bufferAddHandler handles POST /buffer/add
func (s *Server) bufferAddHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req bufferAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("bufferAddHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	userID, ok := s.requireUserID(w, req.UserID)
	if !ok {
		return
	}
	msg, err := s.engine.AddToBuffer(userID, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Recorded(msg))
}

// bufferGetHandler handles GET /buffer?user_id=...
func (s *Server) bufferGetHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	userID, ok := s.requireUserID(w, r.URL.Query().Get("user_id"))
	if !ok {
		return
	}
	msgs, err := s.engine.GetBuffer(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(msgs))
}

// bufferConsumeHandler handles POST /buffer/consume
func (s *Server) bufferConsumeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("bufferConsumeHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	userID, ok := s.requireUserID(w, req.UserID)
	if !ok {
		return
	}
	msgs, err := s.engine.ConsumeBuffer(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(msgs))
}

// contextHandler handles GET /context?user_id=...&limit=N
func (s *Server) contextHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	userID, ok := s.requireUserID(w, r.URL.Query().Get("user_id"))
	if !ok {
		return
	}
	limit := parseIntParam(r.URL.Query().Get("limit"))
	fc, err := s.engine.GetFullContext(r.Context(), userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(fc))
}

// contextPromptHandler handles GET /context/prompt?user_id=...
func (s *Server) contextPromptHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	userID, ok := s.requireUserID(w, r.URL.Query().Get("user_id"))
	if !ok {
		return
	}
	prompt, err := s.engine.GetContextPrompt(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"prompt": prompt}))
}

// onboardingRequest is the body of POST /onboarding.
type onboardingRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// onboardingHandler handles POST /onboarding
func (s *Server) onboardingHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req onboardingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("onboardingHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	userID, ok := s.requireUserID(w, req.UserID)
	if !ok {
		return
	}
	res, err := s.engine.ProcessOnboarding(r.Context(), userID, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

// feedbackRequest is the body of POST /feedback.
type feedbackRequest struct {
	UserID  string `json:"user_id"`
	Score   int    `json:"score"`
	Comment string `json:"comment,omitempty"`
}

// feedbackHandler handles POST /feedback
func (s *Server) feedbackHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("feedbackHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	userID, ok := s.requireUserID(w, req.UserID)
	if !ok {
		return
	}
	entry, err := s.engine.SaveFeedback(r.Context(), userID, req.Score, req.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Recorded(entry))
}

// feedbackTriggerHandler handles GET /feedback/trigger?user_id=...&event=...
func (s *Server) feedbackTriggerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	userID, ok := s.requireUserID(w, r.URL.Query().Get("user_id"))
	if !ok {
		return
	}
	event := models.FeedbackEvent(r.URL.Query().Get("event"))
	decision, err := s.engine.CheckFeedbackTrigger(r.Context(), userID, event)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(decision))
}

// sessionSummaryHandler handles POST /session/summary
func (s *Server) sessionSummaryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("sessionSummaryHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	userID, ok := s.requireUserID(w, req.UserID)
	if !ok {
		return
	}
	res, err := s.engine.SummarizeSession(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

// analyticsHandler handles GET /analytics?user_id=...
func (s *Server) analyticsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	userID, ok := s.requireUserID(w, r.URL.Query().Get("user_id"))
	if !ok {
		return
	}
	analytics, err := s.engine.GetAnalytics(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(analytics))
}

// stateConfigHandler handles GET and POST /config/state
func (s *Server) stateConfigHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		state := models.StateType(r.URL.Query().Get("state"))
		if state == "" {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("state parameter is required"))
			return
		}
		if !models.IsValidStateType(state) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("unknown state: "+string(state)))
			return
		}
		cfg, err := s.engine.Configs().Get(state)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(cfg))

	case http.MethodPost:
		var cfg models.StateConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			slog.Warn("stateConfigHandler invalid JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		saved, err := s.engine.Configs().Save(cfg)
		if err != nil {
			writeError(w, err)
			return
		}
		slog.Info("stateConfigHandler config saved", "state", saved.State, "version", saved.Version)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("State config saved", saved))

	default:
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

// healthHandler handles GET /health
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"service": "cresce"}))
}

// requireUserID canonicalizes the user identifier or writes a 400.
func (s *Server) requireUserID(w http.ResponseWriter, raw string) (string, bool) {
	if raw == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("user_id is required"))
		return "", false
	}
	canonical, err := s.canonicalUserID(raw)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid user_id: "+err.Error()))
		return "", false
	}
	return canonical, true
}

// parseIntParam parses a positive integer query parameter; anything else is 0.
func parseIntParam(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
