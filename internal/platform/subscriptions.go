package platform

import (
	"log/slog"
	"sync"

	"github.com/udisondev/playhub/internal/model"
	"github.com/udisondev/playhub/internal/protocol"
)

// Subscriptions delivers room change pushes to interested connections.
// A connection holds at most one subscription at a time; it is dropped on
// unsubscribe, connection close, or room destruction. Implements
// lobby.Notifier.
type Subscriptions struct {
	mu     sync.Mutex
	byRoom map[string]map[uint64]*Client
	byConn map[uint64]string
}

// NewSubscriptions creates an empty subscription table.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{
		byRoom: make(map[string]map[uint64]*Client),
		byConn: make(map[uint64]string),
	}
}

// Subscribe binds the connection to a room, replacing any previous binding.
func (s *Subscriptions) Subscribe(roomID string, c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropLocked(c.ConnID())

	clients := s.byRoom[roomID]
	if clients == nil {
		clients = make(map[uint64]*Client)
		s.byRoom[roomID] = clients
	}
	clients[c.ConnID()] = c
	s.byConn[c.ConnID()] = roomID
}

// Unsubscribe removes the connection's binding, if any.
func (s *Subscriptions) Unsubscribe(connID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(connID)
}

func (s *Subscriptions) dropLocked(connID uint64) {
	roomID, ok := s.byConn[connID]
	if !ok {
		return
	}
	delete(s.byConn, connID)
	if clients := s.byRoom[roomID]; clients != nil {
		delete(clients, connID)
		if len(clients) == 0 {
			delete(s.byRoom, roomID)
		}
	}
}

// RoomChanged pushes the new room snapshot to every subscriber.
func (s *Subscriptions) RoomChanged(room *model.Room) {
	s.broadcast(room.RoomID, protocol.RoomUpdate(room))
}

// RoomDestroyed drops every subscription on the room.
func (s *Subscriptions) RoomDestroyed(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for connID := range s.byRoom[roomID] {
		delete(s.byConn, connID)
	}
	delete(s.byRoom, roomID)
}

// GameStarted pushes the start notification with the game port.
func (s *Subscriptions) GameStarted(room *model.Room, gamePort int) {
	s.broadcast(room.RoomID, protocol.GameStarted(room, gamePort))
}

// broadcast snapshots the subscriber set under the lock and sends outside
// it; a failed send drops the subscription, the worker notices the dead
// socket on its own read.
func (s *Subscriptions) broadcast(roomID string, msg protocol.Response) {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.byRoom[roomID]))
	for _, c := range s.byRoom[roomID] {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if err := c.Send(msg); err != nil {
			slog.Debug("dropping dead subscriber", "conn_id", c.ConnID(), "room_id", roomID, "err", err)
			s.Unsubscribe(c.ConnID())
		}
	}
}
