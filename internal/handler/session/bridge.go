package session

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	callmodel "github.com/zhouzirui/tara-call/backend/internal/model/call"
	callservice "github.com/zhouzirui/tara-call/backend/internal/service/call"
)

var (
	errBridgeClosed   = errors.New("browser connection closed")
	errRequestTimeout = errors.New("browser did not answer in time")
)

// bridge 把媒体入会委托给浏览器：服务端下发 join / set_microphone，
// 浏览器用 requestId 应答，并上报房间事件。
type bridge struct {
	send    func(outgoingMessage) error
	timeout time.Duration

	mu      sync.Mutex
	seq     uint64
	pending map[string]chan inboundMessage
	room    *bridgeRoom
	closed  bool
}

func newBridge(send func(outgoingMessage) error, timeout time.Duration) *bridge {
	return &bridge{
		send:    send,
		timeout: timeout,
		pending: make(map[string]chan inboundMessage),
	}
}

// request 发送一条带 requestId 的指令并等待浏览器应答。
func (b *bridge) request(ctx context.Context, msgType string, data interface{}) (inboundMessage, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return inboundMessage{}, errBridgeClosed
	}
	b.seq++
	id := strconv.FormatUint(b.seq, 10)
	ch := make(chan inboundMessage, 1)
	b.pending[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	if err := b.send(outgoingMessage{Type: msgType, RequestID: id, Data: data}); err != nil {
		return inboundMessage{}, errors.Wrapf(err, "send %s", msgType)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case reply, ok := <-ch:
		if !ok {
			return inboundMessage{}, errBridgeClosed
		}
		return reply, nil
	case <-timer.C:
		return inboundMessage{}, errors.Wrapf(errRequestTimeout, "%s after %s", msgType, b.timeout)
	case <-ctx.Done():
		return inboundMessage{}, ctx.Err()
	}
}

// resolve 把应答交给等待中的 request，未知 requestId 返回 false。
func (b *bridge) resolve(msg inboundMessage) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.pending[msg.RequestID]
	if !ok {
		return false
	}
	delete(b.pending, msg.RequestID)
	ch <- msg
	return true
}

// current 返回当前房间，未入会时为 nil。
func (b *bridge) current() *bridgeRoom {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.room
}

func (b *bridge) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.pending {
		close(ch)
		delete(b.pending, id)
	}
	b.room = nil
}

func (b *bridge) Join(ctx context.Context, details callmodel.ConnectionDetails) (callservice.Room, error) {
	reply, err := b.request(ctx, msgJoin, joinData{ConnectionDetails: details})
	if err != nil {
		return nil, err
	}

	data, err := decodeReport(reply)
	if err != nil {
		return nil, err
	}
	if reply.Type != reportJoined {
		if data.Error == "" {
			data.Error = "join failed"
		}
		return nil, errors.New(data.Error)
	}

	room := &bridgeRoom{bridge: b, bus: callservice.NewBus()}
	b.mu.Lock()
	b.room = room
	b.mu.Unlock()
	return room, nil
}

// bridgeRoom 是浏览器侧媒体房间在服务端的代理。
type bridgeRoom struct {
	bridge *bridge
	bus    *callservice.Bus
	once   sync.Once
}

func (r *bridgeRoom) Subscribe(kind callservice.EventKind, h callservice.Handler) callservice.Subscription {
	return r.bus.Subscribe(kind, h)
}

func (r *bridgeRoom) Release(s callservice.Subscription) bool {
	return r.bus.Release(s)
}

func (r *bridgeRoom) SetMicrophoneEnabled(enabled bool) error {
	reply, err := r.bridge.request(context.Background(), msgSetMicrophone, setMicrophoneData{Enabled: enabled})
	if err != nil {
		return err
	}
	data, err := decodeReport(reply)
	if err != nil {
		return err
	}
	switch {
	case data.PermissionDenied:
		return callservice.ErrPermissionDenied
	case data.Error != "":
		return errors.New(data.Error)
	}
	return nil
}

func (r *bridgeRoom) Disconnect() {
	r.once.Do(func() {
		r.bridge.mu.Lock()
		if r.bridge.room == r {
			r.bridge.room = nil
		}
		r.bridge.mu.Unlock()
		_ = r.bridge.send(outgoingMessage{Type: msgLeave})
	})
}

func (r *bridgeRoom) emit(kind callservice.EventKind, data interface{}) {
	r.bus.Publish(callservice.Event{Kind: kind, Data: data})
}
