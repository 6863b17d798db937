package gateway

import (
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"roomcast/contract"
	"roomcast/domain"
	"roomcast/errors"
)

// Handler upgrades HTTP requests to websocket sessions and binds each one
// to a broker connection. Admission happens before the upgrade so a full
// broker still answers with a proper HTTP status.
type Handler struct {
	log      *slog.Logger
	broker   contract.IBroker
	codec    *Codec
	upgrader websocket.Upgrader
}

func NewHandler(log *slog.Logger, broker contract.IBroker, checkOrigin func(*http.Request) bool) *Handler {
	return &Handler{
		log:    log,
		broker: broker,
		codec:  NewCodec(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity := domain.Identity(r.URL.Query().Get("identity"))

	id, err := h.broker.OnConnect(identity)
	if err != nil {
		if stderrors.Is(err, errors.ErrCapacityExceeded) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "connection refused", http.StatusInternalServerError)
		return
	}

	messages, err := h.broker.Subscribe(id)
	if err != nil {
		h.broker.OnDisconnect(id)
		http.Error(w, "connection refused", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "connection", id, "error", err)
		h.broker.OnDisconnect(id)
		return
	}

	h.log.Info("Session established", "connection", id, "identity", identity, "remote", conn.RemoteAddr())

	c := newClient(id, conn, h.broker, h.codec, h.log)
	go c.writePump(messages)
	c.readPump()
}
