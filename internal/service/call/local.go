package call

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	callmodel "github.com/zhouzirui/tara-call/backend/internal/model/call"
)

// LocalRoom is an in-process Room with no media. It backs dry-run sessions
// and lets callers inject room events with Emit.
type LocalRoom struct {
	bus *Bus

	mu          sync.Mutex
	details     callmodel.ConnectionDetails
	micEnabled  bool
	micErr      error
	disconnects int
}

func NewLocalRoom(details callmodel.ConnectionDetails) *LocalRoom {
	return &LocalRoom{bus: NewBus(), details: details}
}

func (r *LocalRoom) Subscribe(kind EventKind, h Handler) Subscription {
	return r.bus.Subscribe(kind, h)
}

func (r *LocalRoom) Release(s Subscription) bool {
	return r.bus.Release(s)
}

// FailMicrophone makes later SetMicrophoneEnabled calls return err.
func (r *LocalRoom) FailMicrophone(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.micErr = err
}

func (r *LocalRoom) SetMicrophoneEnabled(enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.micErr != nil {
		return r.micErr
	}
	r.micEnabled = enabled
	return nil
}

func (r *LocalRoom) MicrophoneEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.micEnabled
}

func (r *LocalRoom) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnects++
	r.micEnabled = false
}

// Disconnects counts Disconnect calls.
func (r *LocalRoom) Disconnects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnects
}

// Details returns the connection details the room was joined with.
func (r *LocalRoom) Details() callmodel.ConnectionDetails {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.details
}

// Subscribers returns the number of live room subscriptions.
func (r *LocalRoom) Subscribers() int {
	return r.bus.Len()
}

// Emit publishes a room event synchronously.
func (r *LocalRoom) Emit(kind EventKind, data any) {
	r.bus.Publish(Event{Kind: kind, Data: data})
}

// LocalTransport hands out LocalRooms.
type LocalTransport struct {
	mu    sync.Mutex
	rooms []*LocalRoom
	err   error
}

func NewLocalTransport() *LocalTransport {
	return &LocalTransport{}
}

// FailJoins makes later Join calls return err.
func (t *LocalTransport) FailJoins(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}

func (t *LocalTransport) Join(ctx context.Context, details callmodel.ConnectionDetails) (Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "join room")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	room := NewLocalRoom(details)
	t.rooms = append(t.rooms, room)
	return room, nil
}

// Rooms returns every room joined so far, oldest first.
func (t *LocalTransport) Rooms() []*LocalRoom {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*LocalRoom, len(t.rooms))
	copy(out, t.rooms)
	return out
}

// Last returns the most recent room, or nil.
func (t *LocalTransport) Last() *LocalRoom {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.rooms) == 0 {
		return nil
	}
	return t.rooms[len(t.rooms)-1]
}
