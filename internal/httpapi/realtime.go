package httpapi

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// handleWebsocket implements spec.md §6/§4.I's single real-time
// endpoint. A caller subscribes to one or more topics of §4.I via a
// repeated or comma-separated `topic` query parameter; omitting it
// subscribes to every topic, per realtime.Bus.Subscribe's "nil/empty
// means every topic" rule.
func (h *handlers) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	var topics []string
	for _, raw := range r.URL.Query()["topic"] {
		topics = append(topics, strings.Split(raw, ",")...)
	}
	if err := h.deps.Realtime.ServeWS(w, r, topics...); err != nil {
		log.Warn().Err(err).Msg("httpapi: websocket upgrade failed")
	}
}
