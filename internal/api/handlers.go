package api

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/venuefarm/bookingbot/internal/flow"
	"github.com/venuefarm/bookingbot/internal/models"
)

// MessageRequest is the body of POST /messages.
type MessageRequest struct {
	From string `json:"from"`
	Body string `json:"body"`
}

func (s *Server) messageHandler(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		slog.Warn("Server.messageHandler: bad request body", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	identifier, err := s.canonicalize(strings.TrimSpace(req.From))
	if err != nil || identifier == "" {
		slog.Warn("Server.messageHandler: invalid sender", "from", req.From, "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Errorf("Invalid sender %q", req.From))
		return
	}

	result, err := s.processor.ProcessChannel(r.Context(), flow.ChannelHTTP, identifier, req.Body)
	if err != nil {
		slog.Error("Server.messageHandler: processing failed", "identifier", identifier, "error", err)
		writeError(w, http.StatusServiceUnavailable, flow.SessionFailureReply)
		return
	}
	writeResult(w, result)
}

func (s *Server) conversationHandler(w http.ResponseWriter, r *http.Request) {
	identifier, err := s.canonicalize(chi.URLParam(r, "identifier"))
	if err != nil || identifier == "" {
		writeError(w, http.StatusBadRequest, "Invalid identifier")
		return
	}
	state, err := s.processor.State(r.Context(), identifier)
	if err != nil {
		slog.Error("Server.conversationHandler: failed to load state", "identifier", identifier, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load conversation")
		return
	}
	if state == nil {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	writeResult(w, state)
}

func (s *Server) bookingsHandler(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "Missing user parameter")
		return
	}
	identifier, err := s.canonicalize(user)
	if err != nil || identifier == "" {
		writeError(w, http.StatusBadRequest, "Invalid user parameter")
		return
	}
	bookings, err := s.bookings.ListBookings(r.Context(), identifier)
	if err != nil {
		slog.Error("Server.bookingsHandler: failed to list bookings", "identifier", identifier, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch bookings")
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	writeResult(w, bookings)
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), DefaultHealthTimeout)
	defer cancel()

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	names := make([]string, 0, len(s.healthChecks))
	for name := range s.healthChecks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.healthChecks[name](ctx); err != nil {
			slog.Warn("Health check failed", "check", name, "error", err)
			checks[name] = "unavailable"
			healthData["status"] = "degraded"
			continue
		}
		checks[name] = "ok"
	}
	if len(checks) > 0 {
		healthData["checks"] = checks
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, statusCode, healthData)
}
