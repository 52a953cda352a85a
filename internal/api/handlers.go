package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ysdkz/graycells/internal/line"
	"github.com/ysdkz/graycells/internal/models"
	"github.com/ysdkz/graycells/internal/util"
)

// webhookHandler receives LINE webhook deliveries. One delivery can carry
// several events; each is handled independently so a failing turn never
// blocks the others, and the endpoint answers 200 as long as the request
// itself was valid.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	turnID := util.GenerateTurnID()
	slog.Debug("Server.webhookHandler: processing webhook", "method", r.Method, "turnID", turnID)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.webhookHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	events, err := s.transport.ParseRequest(r)
	if err != nil {
		if errors.Is(err, line.ErrInvalidSignature) {
			slog.Warn("Server.webhookHandler: invalid signature")
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid signature"))
			return
		}
		slog.Warn("Server.webhookHandler: failed to parse request", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid request body"))
		return
	}

	ctx := r.Context()
	for _, event := range events {
		replies, err := s.handler.HandleEvent(ctx, event)
		if err != nil {
			slog.Error("Server.webhookHandler: event handling failed", "error", err, "userID", event.UserID, "turnID", turnID)
			continue
		}
		if len(replies) == 0 || event.ReplyToken == "" {
			continue
		}
		if err := s.transport.Reply(ctx, event.ReplyToken, replies); err != nil {
			slog.Error("Server.webhookHandler: reply delivery failed", "error", err, "userID", event.UserID, "turnID", turnID)
		}
	}

	writeJSONResponse(w, http.StatusOK, models.Accepted())
}

// healthHandler reports liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}
