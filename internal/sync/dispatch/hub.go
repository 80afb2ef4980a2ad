// Package dispatch fans committed events out to connected devices in
// real time. Delivery is at-least-once; peers deduplicate by order id
// and sequence, so the write path stays correct even when the hub
// re-sends or drops frames.
package dispatch

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/event"
)

// Envelope is the wire form of one committed event pushed to devices.
type Envelope struct {
	OrderID        string          `json:"order_id"`
	LocationID     string          `json:"location_id"`
	Seq            uint64          `json:"seq"`
	Kind           string          `json:"kind"`
	EventID        string          `json:"event_id"`
	OriginDeviceID string          `json:"origin_device_id"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	ServerTime     string          `json:"server_time"`
}

// Frame is one websocket message in either direction.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

const (
	FrameTypeHello = "stream.hello"
	FrameTypeEvent = "order.event"
	FrameTypeError = "stream.error"
)

// Peer is one connected device. Writes are serialized per connection;
// delivered sequences are tracked per order so replays are suppressed.
type Peer struct {
	deviceID string

	mu        sync.Mutex
	encoder   *json.Encoder
	delivered map[string]uint64
}

// NewPeer wraps a connection-scoped JSON encoder.
func NewPeer(deviceID string, encoder *json.Encoder) *Peer {
	return &Peer{
		deviceID:  deviceID,
		encoder:   encoder,
		delivered: make(map[string]uint64),
	}
}

// DeviceID reports the authenticated device behind this connection.
func (p *Peer) DeviceID() string {
	return p.deviceID
}

// WriteFrame sends one frame. Safe for concurrent use.
func (p *Peer) WriteFrame(frame Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// Deliver pushes one envelope unless this peer has already seen an
// equal or higher sequence for the order.
func (p *Peer) Deliver(env Envelope) error {
	p.mu.Lock()
	if env.Seq <= p.delivered[env.OrderID] {
		p.mu.Unlock()
		return nil
	}
	p.delivered[env.OrderID] = env.Seq
	err := p.encoder.Encode(Frame{Type: FrameTypeEvent, Payload: mustJSON(env)})
	p.mu.Unlock()
	return err
}

// Hub routes committed events to the devices subscribed to each
// location. Implements the sequencer's post-commit notifier.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*locationRoom
	now   func() time.Time
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]*locationRoom),
		now:   time.Now,
	}
}

// Subscribe attaches a peer to a location stream.
func (h *Hub) Subscribe(locationID string, peer *Peer) {
	h.room(locationID).join(peer)
}

// Unsubscribe detaches a peer. Empty rooms are dropped.
func (h *Hub) Unsubscribe(locationID string, peer *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[locationID]
	if !ok {
		return
	}
	if room.leave(peer) {
		delete(h.rooms, locationID)
	}
}

// Subscribers reports how many peers follow a location.
func (h *Hub) Subscribers(locationID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[locationID]
	if !ok {
		return 0
	}
	return room.size()
}

// EventCommitted pushes one committed event to every subscriber of its
// location. Write failures are logged and otherwise ignored; the device
// reconciles over its pull cursor.
func (h *Hub) EventCommitted(evt event.Event) {
	if evt.LocationID == "" {
		return
	}
	env := Envelope{
		OrderID:        evt.OrderID,
		LocationID:     evt.LocationID,
		Seq:            evt.Seq,
		Kind:           string(evt.Kind),
		EventID:        evt.EventID,
		OriginDeviceID: evt.OriginDeviceID,
		Payload:        json.RawMessage(evt.PayloadJSON),
		ServerTime:     h.now().UTC().Format(time.RFC3339),
	}
	for _, peer := range h.room(evt.LocationID).subscribers() {
		if err := peer.Deliver(env); err != nil {
			log.Printf("dispatch: deliver order=%s seq=%d device=%s: %v", env.OrderID, env.Seq, peer.DeviceID(), err)
		}
	}
}

func (h *Hub) room(locationID string) *locationRoom {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[locationID]
	if !ok {
		room = newLocationRoom(locationID)
		h.rooms[locationID] = room
	}
	return room
}

type locationRoom struct {
	mu         sync.Mutex
	locationID string
	peers      map[*Peer]struct{}
}

func newLocationRoom(locationID string) *locationRoom {
	return &locationRoom{
		locationID: locationID,
		peers:      make(map[*Peer]struct{}),
	}
}

func (r *locationRoom) join(peer *Peer) {
	r.mu.Lock()
	r.peers[peer] = struct{}{}
	r.mu.Unlock()
}

func (r *locationRoom) leave(peer *Peer) bool {
	r.mu.Lock()
	delete(r.peers, peer)
	empty := len(r.peers) == 0
	r.mu.Unlock()
	return empty
}

func (r *locationRoom) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

func (r *locationRoom) subscribers() []*Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers := make([]*Peer, 0, len(r.peers))
	for peer := range r.peers {
		peers = append(peers, peer)
	}
	return peers
}

// EnvelopeEvent converts a pushed envelope back to the domain event.
func EnvelopeEvent(env Envelope) event.Event {
	return event.Event{
		EventID:        env.EventID,
		OrderID:        env.OrderID,
		LocationID:     env.LocationID,
		Seq:            env.Seq,
		Kind:           event.Kind(env.Kind),
		OriginDeviceID: env.OriginDeviceID,
		PayloadJSON:    []byte(env.Payload),
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("dispatch: marshal frame payload: %v", err)
		return nil
	}
	return b
}
