package ws

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans captured requests out to the viewers of each webhook. All state
// is owned by the run goroutine, so registration and broadcast order are
// serialized: a subscriber sees records in the order they were published.
type Hub struct {
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
}

// message couples payload with webhook identifier.
type message struct {
	webhookID string
	payload   []byte
}

// subscription defines register/unregister requests.
type subscription struct {
	webhookID string
	client    Subscriber
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			if _, ok := h.clients[sub.webhookID]; !ok {
				h.clients[sub.webhookID] = make(map[Subscriber]struct{})
			}
			h.clients[sub.webhookID][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.clients[sub.webhookID]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.webhookID)
				}
			}
		case msg := <-h.broadcast:
			if clients, ok := h.clients[msg.webhookID]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.webhookID)
				}
			}
		}
	}
}

// Register adds a client to a webhook stream.
func (h *Hub) Register(webhookID string, client Subscriber) {
	h.register <- subscription{webhookID: webhookID, client: client}
}

// Unregister removes a client.
func (h *Hub) Unregister(webhookID string, client Subscriber) {
	h.unreg <- subscription{webhookID: webhookID, client: client}
}

// Broadcast sends payload to all clients watching the webhook.
func (h *Hub) Broadcast(webhookID string, payload []byte) {
	h.broadcast <- message{webhookID: webhookID, payload: payload}
}
