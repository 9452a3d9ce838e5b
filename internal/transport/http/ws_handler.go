package http

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"learnspace-service/internal/app"
	"learnspace-service/internal/domain"
)

// EventsHandler streams transient notifications (error toasts, the
// quiz-available flag) to connected clients over a websocket.
type EventsHandler struct {
	notifier *app.Notifier
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewEventsHandler(notifier *app.Notifier, log *zap.Logger) *EventsHandler {
	return &EventsHandler{
		notifier: notifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

type outboundEvent struct {
	Type    string              `json:"type"`
	Payload domain.Notification `json:"payload"`
}

// ServeWS upgrades the request and forwards notifications until the client
// disconnects. The single writer goroutine keeps websocket writes serial.
func (h *EventsHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel := h.notifier.Subscribe()
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for notification := range updates {
			msg := outboundEvent{Type: "notification", Payload: notification}
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	// Inbound frames carry nothing; reading only detects disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	cancel()
	<-writerDone
}
