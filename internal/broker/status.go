package broker

// ClientSnapshot is one connected client's public status, as exposed over
// the HTTP status endpoint.
type ClientSnapshot struct {
	ID               string   `json:"id"`
	LastSeen         int64    `json:"lastSeen"`
	SubscribedTopics []string `json:"subscribedTopics"`
}

// MessageSnapshot is one recent publish, as exposed over the HTTP status
// endpoint.
type MessageSnapshot struct {
	Topic     string `json:"topic"`
	Payload   string `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// Snapshot is the full point-in-time view the HTTP status endpoint serves.
// It is built on the broker's single goroutine and published through an
// atomic.Pointer so the HTTP handler's own goroutine never touches live
// broker state.
type Snapshot struct {
	MessageLog       []MessageSnapshot `json:"messageLog"`
	RetainedMessages map[string]string `json:"retainedMessages"`
	ConnectedClients []ClientSnapshot  `json:"connectedClients"`
	WifiSSID         string            `json:"wifi_ssid"`
	WifiIP           string            `json:"wifi_ip"`
}

func (b *Broker) buildSnapshot() *Snapshot {
	entries := b.messageLog.Snapshot()
	msgs := make([]MessageSnapshot, len(entries))
	for i, e := range entries {
		msgs[i] = MessageSnapshot{Topic: e.Topic, Payload: e.Payload, Timestamp: e.TimestampMs}
	}

	retained := make(map[string]string, len(b.retained))
	for topic, payload := range b.retained {
		retained[topic] = string(payload)
	}

	clients := make([]ClientSnapshot, 0, len(b.sessions))
	for _, s := range b.sessions {
		if s.State != Connected {
			continue
		}
		clients = append(clients, ClientSnapshot{
			ID:               s.ClientID,
			LastSeen:         s.LastSeenMs,
			SubscribedTopics: s.subscribedTopics(),
		})
	}

	return &Snapshot{
		MessageLog:       msgs,
		RetainedMessages: retained,
		ConnectedClients: clients,
		WifiSSID:         b.cfg.WifiSSID,
		WifiIP:           b.cfg.WifiIP,
	}
}

// refreshSnapshot rebuilds and publishes the status snapshot; called at the
// end of every Tick, so the HTTP view lags live state by at most one tick.
func (b *Broker) refreshSnapshot() {
	b.snapshot.Store(b.buildSnapshot())
}

// Snapshot returns the most recently published status snapshot. Safe to
// call from any goroutine.
func (b *Broker) Snapshot() *Snapshot {
	return b.snapshot.Load()
}
