package relay

import (
	"context"
	"encoding/json"
	"log"
)

// HubMsg is anything the hub loop accepts.
type HubMsg interface{ isHubMsg() }

// Join registers a client outbox. The hub closes Outbox when the client
// leaves or is dropped.
type Join struct {
	ID     string
	Outbox chan []byte
}

// Leave unregisters a client.
type Leave struct{ ID string }

// Inbound is a frame received from any client.
type Inbound struct {
	From string
	Data []byte
}

// GetStats asks for a Stats snapshot.
type GetStats struct{ Reply chan Stats }

func (Join) isHubMsg()     {}
func (Leave) isHubMsg()    {}
func (Inbound) isHubMsg()  {}
func (GetStats) isHubMsg() {}

// Stats describes the hub state.
type Stats struct {
	Clients   int      `json:"clients"`
	MapInfo   *MapInfo `json:"mapInfo,omitempty"`
	Forwarded uint64   `json:"forwarded"`
	Dropped   uint64   `json:"dropped"`
}

// Hub owns the client set and the latest map info. Every frame is processed
// on the hub goroutine, in arrival order.
type Hub struct {
	inbox   chan HubMsg
	clients map[string]chan []byte
	info    *MapInfo
	size    Size
	stats   Stats
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewHub starts a hub. size is the map image size used for pose conversion.
func NewHub(parent context.Context, size Size) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		clients: make(map[string]chan []byte),
		size:    size,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go h.loop()
	return h
}

// Inbox is the hub's message channel.
func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Post delivers m unless the hub has stopped.
func (h *Hub) Post(m HubMsg) bool {
	if h.ctx.Err() != nil {
		return false
	}
	select {
	case h.inbox <- m:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Stats returns a snapshot, or the zero value after shutdown.
func (h *Hub) Stats() Stats {
	reply := make(chan Stats, 1)
	if !h.Post(GetStats{Reply: reply}) {
		return Stats{}
	}
	select {
	case s := <-reply:
		return s
	case <-h.ctx.Done():
		return Stats{}
	}
}

// Shutdown stops the hub and closes every outbox.
func (h *Hub) Shutdown() {
	h.cancel()
	<-h.done
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			for id, out := range h.clients {
				close(out)
				delete(h.clients, id)
			}
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Join:
				h.clients[msg.ID] = msg.Outbox
				log.Printf("[RELAY] Client %s connected (%d total)", msg.ID, len(h.clients))

			case Leave:
				if out, ok := h.clients[msg.ID]; ok {
					close(out)
					delete(h.clients, msg.ID)
					log.Printf("[RELAY] Client %s disconnected (%d total)", msg.ID, len(h.clients))
				}

			case Inbound:
				if out, ok := h.route(msg.Data); ok {
					h.broadcast(out)
				}

			case GetStats:
				s := h.stats
				s.Clients = len(h.clients)
				if h.info != nil {
					info := *h.info
					s.MapInfo = &info
				}
				msg.Reply <- s
			}
		}
	}
}

func (h *Hub) broadcast(frame []byte) {
	for id, out := range h.clients {
		select {
		case out <- frame:
			h.stats.Forwarded++
		default:
			// Outbox full: the client is not keeping up.
			close(out)
			delete(h.clients, id)
			h.stats.Dropped++
			log.Printf("[RELAY] Dropping slow client %s", id)
		}
	}
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// route decides what to forward for an inbound frame. It returns false when
// nothing should be broadcast. Anything it does not consume goes out as
// received.
func (h *Hub) route(data []byte) ([]byte, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err == nil {
		switch env.Type {
		case "map_yaml":
			info, err := ParseMapInfo(env.Data)
			if err != nil {
				log.Printf("[RELAY] Ignoring map_yaml: %v", err)
				return nil, false
			}
			h.info = info
			log.Printf("[RELAY] Received map info: %+v", info)
			return nil, false

		case "robot_pose":
			if h.info != nil && h.size.Valid() {
				var p Pose
				if err := json.Unmarshal(env.Data, &p); err != nil {
					log.Printf("[RELAY] Ignoring robot_pose: %v", err)
					return nil, false
				}
				px := ToPixel(p, *h.info, h.size)
				out, _ := json.Marshal(struct {
					Topic string `json:"topic"`
					Data  Pixel  `json:"data"`
				}{Topic: "robot_pixel", Data: px})
				return out, true
			}
		}
	}
	return data, true
}
