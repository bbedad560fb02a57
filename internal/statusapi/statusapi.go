// Package statusapi exposes the broker's point-in-time Snapshot over HTTP.
// Handlers run on net/http's own goroutines, the one deliberate boundary
// crossing in the broker's otherwise single-goroutine design; they only
// ever read the atomically-published Snapshot, never the broker itself.
package statusapi

import (
	"encoding/json"
	"net/http"

	"github.com/sparrowmqtt/broker/internal/broker"
	"github.com/sparrowmqtt/broker/internal/logger"
)

// Handler serves the status snapshot and a minimal polling page.
type Handler struct {
	broker *broker.Broker
	log    *logger.Logger
}

// New builds a Handler reading snapshots from brk.
func New(brk *broker.Broker, lg *logger.Logger) *Handler {
	if lg == nil {
		lg = logger.GetGlobalLogger()
	}
	return &Handler{broker: brk, log: lg}
}

// Mux returns an http.ServeMux with every route registered.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/mqtt_data", h.serveData)
	mux.HandleFunc("/", h.serveIndex)
	return mux
}

func (h *Handler) serveData(w http.ResponseWriter, r *http.Request) {
	snap := h.broker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		h.log.Warn("failed to encode status snapshot", logger.ErrorAttr(err))
	}
}

const indexPage = `<!DOCTYPE html>
<html>
<head><title>broker status</title></head>
<body>
<pre id="data">loading...</pre>
<script>
async function poll() {
  const res = await fetch("/mqtt_data");
  document.getElementById("data").textContent = JSON.stringify(await res.json(), null, 2);
}
poll();
setInterval(poll, 2000);
</script>
</body>
</html>`

func (h *Handler) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(indexPage))
}
