package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cresceapp/cresce/internal/flow"
	"github.com/cresceapp/cresce/internal/models"
)

// turnRequest is the body of POST /turn. When Text is empty the user's
// buffered messages are consumed and joined into one utterance, which is how
// the debounce window resolves a burst of short messages into a single turn.
type turnRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text,omitempty"`
	// Deliver sends the generated reply through the messaging channel in
	// addition to returning it.
	Deliver bool `json:"deliver,omitempty"`
}

// turnResponse carries the generated reply and the state it was produced in.
type turnResponse struct {
	Reply     string                    `json:"reply"`
	Delivered bool                      `json:"delivered"`
	State     *models.ConversationState `json:"state"`
}

// turnHandler handles POST /turn: one full conversation turn. The user's
// utterance (given or drained from the buffer) is answered by the language
// model against the assembled conversation context, both sides are recorded
// to memory, and the reply is optionally delivered over the messaging
// channel.
func (s *Server) turnHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	if s.genClient == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Reply generation is not configured"))
		return
	}
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("turnHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	userID, ok := s.requireUserID(w, req.UserID)
	if !ok {
		return
	}
	ctx := r.Context()

	if _, err := s.engine.EnsureState(ctx, userID); err != nil {
		writeError(w, err)
		return
	}

	userText := strings.TrimSpace(req.Text)
	var drained []models.BufferedMessage
	if userText == "" {
		buffered, err := s.engine.ConsumeBuffer(userID)
		if err != nil {
			writeError(w, err)
			return
		}
		drained = buffered
		parts := make([]string, 0, len(buffered))
		for _, m := range buffered {
			parts = append(parts, m.Content)
		}
		userText = strings.TrimSpace(strings.Join(parts, "\n"))
	}
	if userText == "" {
		writeError(w, models.ErrEmptyMessage)
		return
	}

	fc, err := s.engine.GetFullContext(ctx, userID, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	// Recent messages are replayed as chat turns, so the serialized context
	// carries only the state, child and personalization sections.
	meta := *fc
	meta.Memory = nil
	reply, err := s.genClient.GenerateReply(ctx, flow.FormatContextForPrompt(&meta), fc.Memory, userText)
	if err != nil {
		slog.Error("turnHandler reply generation failed", "error", err, "user_id", userID)
		// Put drained messages back so the next turn retries them instead of
		// losing the user's burst.
		for _, m := range drained {
			if _, reqErr := s.engine.AddToBuffer(userID, m.Content); reqErr != nil {
				slog.Error("turnHandler buffer requeue failed", "error", reqErr, "user_id", userID)
			}
		}
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Failed to generate reply"))
		return
	}

	now := time.Now()
	if err := s.engine.RecordMemory(ctx, models.MemoryEntry{
		UserID: userID, Role: models.RoleUserMessage, Content: userText, CreatedAt: now,
	}); err != nil {
		writeError(w, err)
		return
	}
	if err := s.engine.RecordMemory(ctx, models.MemoryEntry{
		UserID: userID, Role: models.RoleAssistantResponse, Content: reply, CreatedAt: now.Add(time.Millisecond),
	}); err != nil {
		writeError(w, err)
		return
	}

	delivered := false
	if req.Deliver {
		if s.msgService == nil {
			writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Message delivery is not configured"))
			return
		}
		if err := s.msgService.SendMessage(ctx, userID, reply); err != nil {
			slog.Error("turnHandler delivery failed", "error", err, "user_id", userID)
			writeJSONResponse(w, http.StatusBadGateway, models.Error("Failed to deliver reply"))
			return
		}
		delivered = true
	}

	cs, err := s.engine.GetState(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("turnHandler turn completed", "user_id", userID, "delivered", delivered, "reply_length", len(reply))
	writeJSONResponse(w, http.StatusOK, models.Success(turnResponse{Reply: reply, Delivered: delivered, State: cs}))
}
