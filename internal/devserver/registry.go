package devserver

import (
	"cmp"
	"errors"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceClient/internal/domain"
)

// MaxMembers is the room capacity; calls are one to one.
const MaxMembers = 2

var (
	ErrRoomExists   = errors.New("room already exists")
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomFull     = errors.New("room is full")
)

type room struct {
	// join order, the first member is the one the others call
	members []domain.ClientID
	conns   map[domain.ClientID]*signalConn
	// reserved by the rendezvous service before the socket arrived
	expected map[domain.ClientID]struct{}
}

func newRoom() *room {
	return &room{
		conns:    make(map[domain.ClientID]*signalConn),
		expected: make(map[domain.ClientID]struct{}),
	}
}

func (r *room) size() int {
	n := len(r.members)
	for id := range r.expected {
		if _, ok := r.conns[id]; !ok {
			n++
		}
	}
	return n
}

type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[domain.RoomID]*room)}
}

// Create opens a room and reserves a seat for its creator.
func (r *Registry) Create(id domain.RoomID, client domain.ClientID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[id]; ok {
		return ErrRoomExists
	}
	rm := newRoom()
	rm.expected[client] = struct{}{}
	r.rooms[id] = rm
	log.Info().Str("module", "devserver.registry").Str("room", string(id)).Str("client", string(client)).Msg("created room")
	return nil
}

// Reserve holds a seat in an existing room for a client about to connect.
func (r *Registry) Reserve(id domain.RoomID, client domain.ClientID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[id]
	if !ok {
		return ErrRoomNotFound
	}
	if _, in := rm.conns[client]; in {
		return nil
	}
	if _, in := rm.expected[client]; in {
		return nil
	}
	if rm.size() >= MaxMembers {
		return ErrRoomFull
	}
	rm.expected[client] = struct{}{}
	log.Info().Str("module", "devserver.registry").Str("room", string(id)).Str("client", string(client)).Msg("reserved seat")
	return nil
}

// Register binds a signaling connection to a room, creating the room when
// the client skipped the rendezvous. It returns the members in join order,
// the caller included.
func (r *Registry) Register(id domain.RoomID, client domain.ClientID, conn *signalConn) ([]domain.ClientID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[id]
	if !ok {
		rm = newRoom()
		r.rooms[id] = rm
	}
	if old, in := rm.conns[client]; in {
		// same client reconnected, the old socket loses its seat
		old.Close()
		rm.conns[client] = conn
		return slices.Clone(rm.members), nil
	}
	_, reserved := rm.expected[client]
	if !reserved && rm.size() >= MaxMembers {
		return nil, ErrRoomFull
	}
	delete(rm.expected, client)
	rm.members = append(rm.members, client)
	rm.conns[client] = conn
	log.Info().Str("module", "devserver.registry").Str("room", string(id)).Str("client", string(client)).Int("members", len(rm.members)).Msg("registered")
	return slices.Clone(rm.members), nil
}

// Unregister removes the client and returns the connections left behind.
// Empty rooms are dropped.
func (r *Registry) Unregister(id domain.RoomID, client domain.ClientID, conn *signalConn) []*signalConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[id]
	if !ok {
		return nil
	}
	if cur, in := rm.conns[client]; !in || cur != conn {
		return nil
	}
	delete(rm.conns, client)
	rm.members = slices.DeleteFunc(rm.members, func(m domain.ClientID) bool { return m == client })
	if len(rm.members) == 0 && len(rm.expected) == 0 {
		delete(r.rooms, id)
		log.Info().Str("module", "devserver.registry").Str("room", string(id)).Msg("room closed")
	}
	log.Info().Str("module", "devserver.registry").Str("room", string(id)).Str("client", string(client)).Msg("unregistered")

	out := make([]*signalConn, 0, len(rm.members))
	for _, m := range rm.members {
		out = append(out, rm.conns[m])
	}
	return out
}

func (r *Registry) Lookup(id domain.RoomID, client domain.ClientID) (*signalConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[id]
	if !ok {
		return nil, false
	}
	c, ok := rm.conns[client]
	return c, ok
}

func (r *Registry) Members(id domain.RoomID) []domain.ClientID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rm, ok := r.rooms[id]; ok {
		return slices.Clone(rm.members)
	}
	return nil
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"members"`
}

func (r *Registry) List() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for id, rm := range r.rooms {
		out = append(out, RoomInfo{ID: id, MemberCount: len(rm.members)})
	}
	slices.SortFunc(out, func(a, b RoomInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
