package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	"github.com/taskstream/backend/pkg/logger"
)

// Wire message types of the subscription protocol. A client sends
// "subscribe" with a GraphQL subscription document and later "complete" to
// stop it; the server answers with "next" results, "error", and a final
// "complete" when the stream ends.
const (
	messageSubscribe = "subscribe"
	messageComplete  = "complete"
	messageNext      = "next"
	messageError     = "error"
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

// SubscriptionHandler serves long-lived GraphQL subscription connections
// over websockets.
type SubscriptionHandler struct {
	schema   graphql.Schema
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(schema graphql.Schema, logger *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		schema: schema,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// origin checks happen at the gateway
				return true
			},
		},
	}
}

// Serve upgrades the connection and runs the subscription session until
// the client goes away.
func (h *SubscriptionHandler) Serve(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed",
			zap.Error(err),
			zap.String("remote_addr", c.Request.RemoteAddr))
		return
	}
	defer ws.Close()

	ws.SetReadLimit(64 * 1024)
	ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// The session context carries the caller identity attached by the
	// middleware; cancelling it tears down every active subscription.
	sessionCtx, cancelSession := context.WithCancel(c.Request.Context())
	defer cancelSession()

	var (
		mu     sync.Mutex
		active = make(map[string]context.CancelFunc)
	)
	outbound := make(chan wsMessage, 16)
	done := make(chan struct{})

	cancelOne := func(id string) {
		mu.Lock()
		if cancel, ok := active[id]; ok {
			cancel()
			delete(active, id)
		}
		mu.Unlock()
	}

	// Read pump: subscribe/complete commands from the client.
	go func() {
		defer close(done)
		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseGoingAway,
					websocket.CloseNormalClosure,
					websocket.CloseAbnormalClosure) {
					h.logger.Warn("websocket read error", zap.Error(err))
				}
				return
			}

			var msg wsMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}

			switch msg.Type {
			case messageSubscribe:
				h.startSubscription(sessionCtx, msg, &mu, active, outbound)
			case messageComplete:
				cancelOne(msg.ID)
			}
		}
	}()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case msg := <-outbound:
			if err := ws.WriteJSON(msg); err != nil {
				h.logger.Warn("websocket write error", zap.Error(err))
				return
			}

		case <-pingTicker.C:
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

func (h *SubscriptionHandler) startSubscription(
	sessionCtx context.Context,
	msg wsMessage,
	mu *sync.Mutex,
	active map[string]context.CancelFunc,
	outbound chan<- wsMessage,
) {
	var payload subscribePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Query == "" {
		h.send(sessionCtx, outbound, errorMessage(msg.ID, "invalid subscribe payload"))
		return
	}

	subCtx, cancel := context.WithCancel(sessionCtx)

	mu.Lock()
	if _, exists := active[msg.ID]; exists {
		mu.Unlock()
		cancel()
		h.send(sessionCtx, outbound, errorMessage(msg.ID, "subscription id already in use"))
		return
	}
	active[msg.ID] = cancel
	mu.Unlock()

	results := graphql.Subscribe(graphql.Params{
		Schema:         h.schema,
		RequestString:  payload.Query,
		OperationName:  payload.OperationName,
		VariableValues: payload.Variables,
		Context:        subCtx,
	})

	go func() {
		defer func() {
			cancel()
			mu.Lock()
			delete(active, msg.ID)
			mu.Unlock()
		}()

		for result := range results {
			body, err := json.Marshal(result)
			if err != nil {
				h.logger.Error("subscription result marshal failed", zap.Error(err))
				continue
			}
			h.send(subCtx, outbound, wsMessage{ID: msg.ID, Type: messageNext, Payload: body})
		}
		h.send(sessionCtx, outbound, wsMessage{ID: msg.ID, Type: messageComplete})
	}()
}

func (h *SubscriptionHandler) send(ctx context.Context, outbound chan<- wsMessage, msg wsMessage) {
	select {
	case outbound <- msg:
	case <-ctx.Done():
	}
}

func errorMessage(id, text string) wsMessage {
	body, _ := json.Marshal(gin.H{"message": text})
	return wsMessage{ID: id, Type: messageError, Payload: body}
}
