package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/personaops/backend/internal/domain"
	"github.com/personaops/backend/internal/security/auth"
)

const (
	researchPollInterval = 500 * time.Millisecond
	researchMaxDuration  = 10 * time.Minute
	pingInterval         = 15 * time.Second
	writeWait            = 5 * time.Second
)

// StepSource returns research steps newer than afterID.
type StepSource interface {
	StepsSince(ctx context.Context, researchID, userID string, afterID int64) ([]*domain.ResearchStep, error)
}

// TokenVerifier validates a bearer token.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// ResearchStreamHandler streams company_research_steps rows over a
// WebSocket until a terminal step arrives.
type ResearchStreamHandler struct {
	steps          StepSource
	verifier       TokenVerifier
	allowedOrigins []string
	enabled        func() bool
	pollInterval   time.Duration
	logger         *slog.Logger
}

// NewResearchStreamHandler creates the handler. enabled gates the route
// behind the research_stream flag; nil means always on.
func NewResearchStreamHandler(steps StepSource, verifier TokenVerifier, allowedOrigins []string, enabled func() bool, logger *slog.Logger) *ResearchStreamHandler {
	if enabled == nil {
		enabled = func() bool { return true }
	}
	return &ResearchStreamHandler{
		steps:          steps,
		verifier:       verifier,
		allowedOrigins: allowedOrigins,
		enabled:        enabled,
		pollInterval:   researchPollInterval,
		logger:         logger,
	}
}

func (h *ResearchStreamHandler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients send no origin.
			if origin == "" || slices.Contains(h.allowedOrigins, "*") || slices.Contains(h.allowedOrigins, origin) {
				return true
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// ServeHTTP handles GET /ws/research/{id}?token=<jwt>. Browsers cannot set
// headers on a WebSocket handshake, so the token may ride in the query.
func (h *ResearchStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.enabled() {
		writeJSON(w, h.logger, http.StatusNotFound, ErrorResponse{Error: "not found"})
		return
	}

	researchID := r.PathValue("id")
	if researchID == "" {
		writeError(w, r, h.logger, domain.Required("id"))
		return
	}

	claims, err := h.authenticate(r)
	if err != nil {
		writeJSON(w, h.logger, http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}

	// Reject bad ids before the upgrade so the client sees a 400.
	if _, err := h.steps.StepsSince(r.Context(), researchID, claims.Subject, 0); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	upgrader := h.upgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()
	// The server's request read deadline still applies to the hijacked conn.
	_ = ws.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithTimeout(r.Context(), researchMaxDuration)
	defer cancel()

	// Reading is required to process control frames; a read error means the
	// client left.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.stream(ctx, ws, researchID, claims.Subject); err != nil {
		h.logger.Debug("research stream ended",
			slog.String("research_id", researchID),
			slog.String("reason", err.Error()),
		)
	}
}

func (h *ResearchStreamHandler) authenticate(r *http.Request) (*auth.Claims, error) {
	token := r.URL.Query().Get("token")
	if header := r.Header.Get("Authorization"); header != "" {
		t, err := auth.ExtractToken(header)
		if err != nil {
			return nil, err
		}
		token = t
	}
	if token == "" {
		return nil, domain.ErrUnauthorized
	}
	claims, err := h.verifier.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}

// stream polls for new steps and writes each one as a JSON text frame. It
// returns nil after sending a terminal step.
func (h *ResearchStreamHandler) stream(ctx context.Context, ws *websocket.Conn, researchID, userID string) error {
	poll := time.NewTicker(h.pollInterval)
	defer poll.Stop()
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	var lastID int64
	for {
		steps, err := h.steps.StepsSince(ctx, researchID, userID, lastID)
		if err != nil {
			return err
		}
		for _, step := range steps {
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(step); err != nil {
				return err
			}
			lastID = step.ID
			if step.Terminal() {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, step.Step)
				_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				return err
			}
		case <-poll.C:
		}
	}
}
