package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

const wsActionTimeout = 10 * time.Second

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

// WSHandler streams the live session to the exam page and accepts its
// actions over the same socket.
type WSHandler struct {
	hub      *ws.Hub
	proctor  *service.ProctorService
	log      zerolog.Logger
	upgrader websocket.Upgrader
	// base bounds every connection's lifetime.
	base context.Context
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(base context.Context, hub *ws.Hub, proctor *service.ProctorService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub:      hub,
		proctor:  proctor,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
		base:     base,
	}
}

// SessionStream godoc
// WS /ws/v1/session/stream
// Pushes snapshots and notices; accepts answer, signal, submit and ping.
func (h *WSHandler) SessionStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := ws.NewClient()
	if !h.hub.Register(h.base, client) {
		_ = ws.WriteTyped(conn, ws.ErrorResponse{Event: ws.EventError, Error: string(response.ErrSessionStopped)})
		conn.Close()
		return
	}

	connID := uuid.NewString()
	wsLog := h.log.With().Str("conn_id", connID).Logger()
	wsLog.Info().Msg("Exam page connected")

	go h.writePump(conn, client)
	h.readPump(conn, client, wsLog)
}

func (h *WSHandler) readPump(conn *websocket.Conn, client *ws.Client, log zerolog.Logger) {
	defer func() {
		h.hub.Unregister(h.base, client)
		conn.Close()
	}()

	ws.PrepareRead(conn)
	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Unexpected close")
			} else {
				log.Debug().Msg("Connection closed")
			}
			return
		}

		reply := h.handle(&msg, log)
		if !h.reply(client, reply) {
			log.Warn().Str("action", string(msg.Action)).Msg("Outbox full, dropping reply")
		}
	}
}

// writePump is the only writer of conn.
func (h *WSHandler) writePump(conn *websocket.Conn, client *ws.Client) {
	ticker := time.NewTicker(ws.PingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-client.Done():
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-client.Send:
			if err := ws.WriteRaw(conn, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.WritePing(conn); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) reply(client *ws.Client, v interface{}) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return client.Offer(data)
}

func (h *WSHandler) handle(msg *ws.RequestPayload, log zerolog.Logger) interface{} {
	if msg.Action == ws.ActionPing {
		return ws.PongResponse{Event: ws.EventPong}
	}

	ctrl, err := h.proctor.Current()
	if err != nil {
		return errorEvent(err)
	}
	ctx, cancel := context.WithTimeout(h.base, wsActionTimeout)
	defer cancel()

	switch msg.Action {
	case ws.ActionAnswer:
		qid, err := uuid.Parse(msg.QuestionID)
		if err != nil || msg.Answer == nil {
			return ws.ErrorResponse{Event: ws.EventError, Error: string(response.ErrInvalidPayload)}
		}
		if err := ctrl.EditAnswer(ctx, qid, *msg.Answer); err != nil {
			return errorEvent(err)
		}
		return ws.SuccessResponse{Event: ws.EventSuccess, Action: msg.Action}

	case ws.ActionSignal:
		if msg.Signal == nil {
			return ws.ErrorResponse{Event: ws.EventError, Error: string(response.ErrInvalidPayload)}
		}
		verdict, err := ctrl.Signal(ctx, *msg.Signal)
		if err != nil {
			return errorEvent(err)
		}
		return ws.VerdictResponse{Event: ws.EventVerdict, Block: verdict.Block, Type: verdict.Type}

	case ws.ActionSubmit:
		if err := ctrl.Submit(ctx); err != nil {
			return errorEvent(err)
		}
		return ws.SuccessResponse{Event: ws.EventSuccess, Action: msg.Action}

	default:
		log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		return ws.ErrorResponse{Event: ws.EventError, Error: string(response.ErrInvalidPayload)}
	}
}

func errorEvent(err error) ws.ErrorResponse {
	_, code := statusFor(err)
	return ws.ErrorResponse{Event: ws.EventError, Error: string(code)}
}
