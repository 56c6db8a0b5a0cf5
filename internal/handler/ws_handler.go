package handler

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
	ws "github.com/stemsi/exstem-attempt/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live attempt: ticks, transitions and grades go out,
// answers, flags and submits come in.
type WSHandler struct {
	attempts    *service.AttemptService
	submitLimit *middleware.RateLimiter
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. submitLimit is the limiter guarding
// the HTTP submit route; stream submits draw from the same buckets. A nil
// limiter disables the check.
func NewWSHandler(attempts *service.AttemptService, submitLimit *middleware.RateLimiter, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attempts:    attempts,
		submitLimit: submitLimit,
		log:         log.With().Str("component", "ws_handler").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/attempts/:paper_id/stream
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	studentID := claims.UserID
	paperID := c.Param("paper_id")
	token := middleware.GetToken(c)
	reqCtx := c.Request.Context()

	// Refuse before upgrading so the client gets a proper HTTP error.
	state, err := h.attempts.State(studentID, paperID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("paper_id", paperID).
		Logger()

	wsLog.Info().Msg("Student connected")

	events, unsubscribe := h.attempts.Subscribe(studentID, paperID)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			if err := conn.WriteTyped(ws.FromSession(ev.Event)); err != nil {
				wsLog.Debug().Err(err).Msg("Event write failed")
			}
		}
	}()
	defer func() {
		unsubscribe()
		wg.Wait()
	}()

	_ = conn.WriteTyped(ws.StateResponse{Event: ws.EventState, State: state})

	for {
		req, err := conn.ReadRequest()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch req.Action {
		case ws.ActionAnswer:
			h.reply(conn, req, nil, h.attempts.Answer(studentID, paperID, req.QuestionID, req.Option))
		case ws.ActionClear:
			h.reply(conn, req, nil, h.attempts.ClearAnswer(studentID, paperID, req.QuestionID))
		case ws.ActionFlag:
			flagged, err := h.attempts.ToggleFlag(studentID, paperID, req.QuestionID)
			h.reply(conn, req, &flagged, err)
		case ws.ActionSubmit:
			if h.submitLimit != nil && !h.submitLimit.Allow(c) {
				_ = conn.WriteError(string(response.ErrRateLimitExceeded), "too many submit attempts")
				continue
			}
			// The outcome arrives as a graded or submit_failed event; reading
			// continues meanwhile so pings are still answered.
			go func() {
				if _, err := h.attempts.Submit(reqCtx, studentID, token, paperID); err != nil {
					_, code := classify(err)
					if code != response.ErrSubmissionFailed {
						_ = conn.WriteError(string(code), err.Error())
					}
				}
			}()
		case ws.ActionPing:
			_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(req.Action)).Msg("Unknown action")
			_ = conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(req.Action))
		}
	}
}

func (h *WSHandler) reply(conn *ws.Conn, req ws.Request, flagged *bool, err error) {
	if err != nil {
		_, code := classify(err)
		_ = conn.WriteError(string(code), err.Error())
		return
	}
	_ = conn.WriteTyped(ws.AckResponse{
		Event:      ws.EventAck,
		Action:     req.Action,
		QuestionID: req.QuestionID,
		Flagged:    flagged,
	})
}
