package gateway

import (
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"roomcast/contract"
	"roomcast/domain"
	"roomcast/errors"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// client binds one websocket to one broker connection id. The read pump
// feeds parsed events into the broker; the write pump drains the broker's
// Subscribe stream back onto the wire. Each pump runs in its own
// goroutine; the connection dies when either pump returns.
type client struct {
	id     domain.ConnectionID
	conn   *websocket.Conn
	broker contract.IBroker
	codec  *Codec
	log    *slog.Logger

	// Gateway-level notices are funneled into the write pump because
	// gorilla allows a single concurrent writer per connection.
	notices chan []byte
}

func newClient(id domain.ConnectionID, conn *websocket.Conn,
	broker contract.IBroker, codec *Codec, log *slog.Logger) *client {
	conn.SetReadLimit(maxMessageSize)
	return &client{
		id:      id,
		conn:    conn,
		broker:  broker,
		codec:   codec,
		log:     log,
		notices: make(chan []byte, 8),
	}
}

// readPump blocks until the peer goes away, forwarding every frame to the
// broker. A frame that fails to decode or is semantically invalid is
// discarded and answered with a system notice, never a close.
func (c *client) readPump() {
	defer func() {
		c.broker.OnDisconnect(c.id)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("Unexpected websocket close", "connection", c.id, "error", err)
			}
			return
		}

		evt, err := c.codec.Decode(data)
		if err != nil {
			c.log.Debug("Discarding malformed frame", "connection", c.id, "error", err)
			c.notify(err.Error())
			continue
		}

		if err := c.broker.OnFrame(c.id, evt); err != nil {
			// Violations already notified the connection through its
			// mailbox; an unknown connection means we are being torn
			// down concurrently so stop reading.
			if stderrors.Is(err, errors.ErrUnknownConnection) {
				return
			}
			c.log.Debug("Frame rejected", "connection", c.id, "error", err)
		}
	}
}

// writePump drains the mailbox stream. The broker closes the stream on
// teardown, which gives the peer a normal close frame.
func (c *client) writePump(messages <-chan domain.Message) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-messages:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "connection reaped"))
				return
			}

			data, err := c.codec.Encode(msg)
			if err != nil {
				c.log.Error("Failed to encode outbound message", "connection", c.id, "error", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("Write failed, dropping connection", "connection", c.id, "error", err)
				return
			}

		case data := <-c.notices:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// notify queues a gateway-level system frame; the message never transits
// the broker since it concerns the transport layer itself. Dropped when
// the notice buffer is full.
func (c *client) notify(text string) {
	data, err := c.codec.EncodeNotice(text)
	if err != nil {
		return
	}
	select {
	case c.notices <- data:
	default:
	}
}
