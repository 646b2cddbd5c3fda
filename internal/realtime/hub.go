package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub bridges the topic Bus to websocket clients, the single real-time
// endpoint of spec.md §6 ("Transport... one websocket endpoint for
// real-time fan-out"). Grounded on internal/server.Hub's register/
// unregister/broadcast channel trio, generalized from a single
// all-clients broadcast to per-client topic subscriptions sourced from
// Bus.Subscribe.
type Hub struct {
	bus *Bus
}

func NewHub(bus *Bus) *Hub {
	return &Hub{bus: bus}
}

// wsClient is one connected browser/dashboard socket.
type wsClient struct {
	conn   *websocket.Conn
	send   chan Message
	cancel func()
}

// ServeWS upgrades the request and streams every topic in topics (all
// topics if empty) to the client until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, topics ...string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	ch, unsubscribe := h.bus.Subscribe(topics...)
	client := &wsClient{conn: conn, send: make(chan Message, subscriberBufferSize), cancel: unsubscribe}

	go client.readPump()
	go client.writePump(ch)

	return nil
}

func (c *wsClient) readPump() {
	defer func() {
		c.cancel()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump(ch <-chan Message) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				log.Warn().Err(err).Str("topic", msg.Topic).Msg("realtime: failed to encode message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
