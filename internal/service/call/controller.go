package call

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/tara-call/backend/internal/metrics"
	callmodel "github.com/zhouzirui/tara-call/backend/internal/model/call"
	"github.com/zhouzirui/tara-call/backend/internal/model/feedback"
)

const (
	// MaxCallDuration is the ceiling after which a call is ended automatically.
	MaxCallDuration = 300 * time.Second

	DefaultTickInterval      = time.Second
	DefaultConfirmationDelay = 3 * time.Second
	DefaultFailureResetDelay = 6 * time.Second
)

var (
	ErrConnectInFlight      = errors.New("connect already in progress")
	ErrNotInCall            = errors.New("no call in progress")
	ErrNotCapturingFeedback = errors.New("feedback is not being captured")
	ErrSubmitInFlight       = errors.New("feedback submission already in progress")
	ErrMuteInFlight         = errors.New("microphone toggle already in progress")
	ErrSessionClosed        = errors.New("session was closed")
	ErrInvalidDetails       = errors.New("invalid connection details received")
	ErrClosed               = errors.New("controller closed")
)

// Options tunes a Controller. Zero values pick the defaults above, and
// MaxCallDuration is capped at the MaxCallDuration ceiling.
type Options struct {
	MaxCallDuration   time.Duration
	TickInterval      time.Duration
	ConfirmationDelay time.Duration
	FailureResetDelay time.Duration
	AgentName         string
	Clock             clockwork.Clock
	Metrics           *metrics.Recorder
}

func (o Options) withDefaults() Options {
	if o.MaxCallDuration <= 0 || o.MaxCallDuration > MaxCallDuration {
		o.MaxCallDuration = MaxCallDuration
	}
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.ConfirmationDelay <= 0 {
		o.ConfirmationDelay = DefaultConfirmationDelay
	}
	if o.FailureResetDelay <= 0 {
		o.FailureResetDelay = DefaultFailureResetDelay
	}
	if o.FailureResetDelay < o.ConfirmationDelay {
		o.FailureResetDelay = o.ConfirmationDelay
	}
	if o.AgentName == "" {
		o.AgentName = "Tara"
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Noop()
	}
	return o
}

// StateChange is the payload of EventStateChanged.
type StateChange struct {
	Transition Transition        `json:"transition,omitempty"`
	Session    callmodel.Session `json:"session"`
}

// Tick is the payload of EventTick.
type Tick struct {
	ElapsedSeconds int    `json:"elapsedSeconds"`
	Display        string `json:"display"`
}

// Controller drives one call session through
// Idle -> Connecting -> InCall -> FeedbackCapture -> Done -> Idle.
// It is safe for concurrent use. Events are delivered in order on a single
// dispatcher goroutine, so handlers may call back into the Controller.
type Controller struct {
	opts      Options
	clock     clockwork.Clock
	creds     CredentialSource
	transport Transport
	sink      FeedbackSink
	bus       *Bus

	mu         sync.Mutex
	session    callmodel.Session
	gen        uint64
	room       Room
	roomSubs   []Subscription
	startedAt  time.Time
	draft      *feedback.Draft
	submitting bool
	toggling   bool
	expiry     clockwork.Timer
	stopTick   chan struct{}
	resetTimer clockwork.Timer
	closed     bool

	qmu    sync.Mutex
	queue  []Event
	notify chan struct{}
	done   chan struct{}
}

// NewController wires a controller to its collaborators and starts its event dispatcher.
func NewController(creds CredentialSource, transport Transport, sink FeedbackSink, opts Options) *Controller {
	opts = opts.withDefaults()
	c := &Controller{
		opts:      opts,
		clock:     opts.Clock,
		creds:     creds,
		transport: transport,
		sink:      sink,
		bus:       NewBus(),
		session:   callmodel.Session{State: callmodel.StateIdle},
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go c.dispatch()
	return c
}

// Subscribe registers h for events of kind.
func (c *Controller) Subscribe(kind EventKind, h Handler) Subscription {
	return c.bus.Subscribe(kind, h)
}

// Release removes a subscription returned by Subscribe.
func (c *Controller) Release(s Subscription) bool {
	return c.bus.Release(s)
}

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() callmodel.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Connect requests a credential and joins the room. Only one Connect may be
// outstanding; a second call while Connecting returns ErrConnectInFlight without
// issuing a request. Failures move the session to Error and are not retried.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.session.State == callmodel.StateConnecting {
		c.mu.Unlock()
		return ErrConnectInFlight
	}
	if c.session.State == callmodel.StateDone {
		c.resetLocked()
	}
	if err := c.transitionLocked(TransitionConnect); err != nil {
		c.mu.Unlock()
		return err
	}
	c.gen++
	gen := c.gen
	c.session = callmodel.Session{ID: uuid.NewString(), State: callmodel.StateConnecting}
	c.emitStateLocked(TransitionConnect)
	c.mu.Unlock()

	details, err := c.creds.FetchCredential(ctx)
	if err != nil {
		c.fail(gen, err)
		return err
	}
	if strings.TrimSpace(details.ParticipantToken) == "" || strings.TrimSpace(details.ServerURL) == "" {
		c.fail(gen, ErrInvalidDetails)
		return ErrInvalidDetails
	}

	room, err := c.transport.Join(ctx, details)
	if err != nil {
		err = errors.Wrap(err, "failed to connect to agent")
		c.fail(gen, err)
		return err
	}

	c.mu.Lock()
	if gen != c.gen || c.session.State != callmodel.StateConnecting {
		c.mu.Unlock()
		room.Disconnect()
		return ErrSessionClosed
	}
	_ = c.transitionLocked(TransitionJoined)
	c.room = room
	c.session.ServerURL = details.ServerURL
	c.session.RoomName = details.RoomName
	c.session.ParticipantName = details.ParticipantName
	c.session.Credential = details.ParticipantToken
	c.startedAt = c.clock.Now()
	c.expiry = c.clock.AfterFunc(c.opts.MaxCallDuration, func() { c.end(gen, TransitionExpire, callmodel.EndReasonExpired) })
	c.stopTick = make(chan struct{})
	go c.tickLoop(gen, c.clock.NewTicker(c.opts.TickInterval), c.stopTick)
	c.roomSubs = c.watchRoom(gen, room)
	sessionID := c.session.ID
	c.emitStateLocked(TransitionJoined)
	c.mu.Unlock()

	log.Info().
		Str("component", "call").
		Str("session", sessionID).
		Str("room", details.RoomName).
		Dur("maxDuration", c.opts.MaxCallDuration).
		Msg("call started")

	c.enableMicrophone(gen, room)
	return nil
}

// Disconnect ends the live call on the user's request. It is a no-op returning
// ErrNotInCall when no call is live, so racing with the expiry timer is harmless.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	return c.end(gen, TransitionDisconnect, callmodel.EndReasonUser)
}

// ToggleMute flips the local microphone. The state is unchanged when the room refuses.
// Only one toggle may be outstanding; a second returns ErrMuteInFlight.
func (c *Controller) ToggleMute() error {
	c.mu.Lock()
	if c.session.State != callmodel.StateInCall || c.room == nil {
		c.mu.Unlock()
		return ErrNotInCall
	}
	if c.toggling {
		c.mu.Unlock()
		return ErrMuteInFlight
	}
	c.toggling = true
	room := c.room
	gen := c.gen
	muted := !c.session.Muted
	c.mu.Unlock()

	err := room.SetMicrophoneEnabled(!muted)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.gen {
		c.toggling = false
	}
	if err != nil {
		log.Warn().Err(err).Str("component", "call").Msg("error toggling microphone")
		return errors.Wrap(err, "toggle microphone")
	}
	if gen != c.gen || c.session.State != callmodel.StateInCall {
		return ErrNotInCall
	}
	c.session.Muted = muted
	c.emitLocked(Event{Kind: EventMuteChanged, SessionID: c.session.ID, Data: muted})
	return nil
}

// AnswerTaskCompleted records the first wizard step.
func (c *Controller) AnswerTaskCompleted(completed bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.capturingLocked(); err != nil {
		return err
	}
	c.draft.SetTaskCompleted(completed)
	c.session.FeedbackStep = int(c.draft.Step())
	c.emitStateLocked("")
	return nil
}

// AnswerHumanScore records the second wizard step.
func (c *Controller) AnswerHumanScore(score int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.capturingLocked(); err != nil {
		return err
	}
	if err := c.draft.SetHumanScore(score); err != nil {
		return err
	}
	c.session.FeedbackStep = int(c.draft.Step())
	c.emitStateLocked("")
	return nil
}

// SubmitFeedback completes the wizard and posts the submission. A sink failure
// is logged but not returned: the session still moves to Done and resets after
// the longer FailureResetDelay.
func (c *Controller) SubmitFeedback(ctx context.Context, text string) error {
	c.mu.Lock()
	if err := c.capturingLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.draft.SetFeedbackText(text)
	sub, err := c.draft.Build(c.clock.Now())
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.submitting = true
	gen := c.gen
	c.mu.Unlock()

	sinkErr := c.sink.SubmitFeedback(ctx, sub)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitting = false
	if gen != c.gen || c.session.State != callmodel.StateFeedbackCapture {
		return ErrSessionClosed
	}
	_ = c.transitionLocked(TransitionSubmit)
	c.session.Recorded = sinkErr == nil
	delay := c.opts.ConfirmationDelay
	if sinkErr != nil {
		delay = c.opts.FailureResetDelay
		log.Warn().Err(sinkErr).
			Str("component", "call").
			Str("session", c.session.ID).
			Dur("resetIn", delay).
			Msg("feedback not recorded")
	}
	c.resetTimer = c.clock.AfterFunc(delay, func() { c.reset(gen) })
	c.emitStateLocked(TransitionSubmit)
	return nil
}

// SkipFeedback abandons the wizard and returns to Idle at once.
func (c *Controller) SkipFeedback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.capturingLocked(); err != nil {
		return err
	}
	_ = c.transitionLocked(TransitionSkip)
	c.draft = nil
	c.session = callmodel.Session{State: callmodel.StateIdle}
	c.emitStateLocked(TransitionSkip)
	return nil
}

// Close discards the session and releases every resource, as on tab close.
// It is not a state-machine transition; the controller rejects further Connects.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	room, subs := c.teardownLocked()
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	c.draft = nil
	c.session = callmodel.Session{State: callmodel.StateIdle}
	c.emitStateLocked("")
	c.mu.Unlock()

	releaseRoom(room, subs)
	close(c.done)
}

func (c *Controller) capturingLocked() error {
	if c.session.State != callmodel.StateFeedbackCapture || c.draft == nil {
		return ErrNotCapturingFeedback
	}
	if c.submitting {
		return ErrSubmitInFlight
	}
	return nil
}

func (c *Controller) transitionLocked(t Transition) error {
	to, err := Next(c.session.State, t)
	if err != nil {
		return err
	}
	c.session.State = to
	return nil
}

func (c *Controller) fail(gen uint64, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.session.State != callmodel.StateConnecting {
		return
	}
	_ = c.transitionLocked(TransitionFail)
	c.session.Error = displayError(cause)
	c.emitStateLocked(TransitionFail)
	log.Error().Err(cause).Str("component", "call").Str("session", c.session.ID).Msg("error connecting to agent")
}

// displayError turns an error chain into the sentence shown to the user.
func displayError(err error) string {
	msg := err.Error()
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

// end leaves InCall. The generation check makes a stale expiry timer a no-op.
func (c *Controller) end(gen uint64, t Transition, reason callmodel.EndReason) error {
	c.mu.Lock()
	if gen != c.gen || c.session.State != callmodel.StateInCall {
		c.mu.Unlock()
		return ErrNotInCall
	}
	_ = c.transitionLocked(t)
	c.session.ElapsedSeconds = c.elapsedLocked()
	elapsed := c.clock.Since(c.startedAt)
	room, subs := c.teardownLocked()
	c.session.EndReason = reason
	c.session.Muted = false
	c.draft = feedback.NewDraft()
	c.session.FeedbackStep = int(c.draft.Step())
	sessionID := c.session.ID
	c.emitStateLocked(t)
	c.mu.Unlock()

	releaseRoom(room, subs)
	c.opts.Metrics.CallEnded(context.Background(), string(reason), elapsed.Seconds())
	log.Info().
		Str("component", "call").
		Str("session", sessionID).
		Str("reason", string(reason)).
		Dur("elapsed", elapsed).
		Msg("call ended")
	return nil
}

// reset fires the named terminal transition Done -> Idle.
func (c *Controller) reset(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.session.State != callmodel.StateDone {
		return
	}
	c.resetLocked()
}

func (c *Controller) resetLocked() {
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	_ = c.transitionLocked(TransitionReset)
	c.draft = nil
	c.session = callmodel.Session{State: callmodel.StateIdle}
	c.emitStateLocked(TransitionReset)
}

// teardownLocked stops the call timers and detaches the room. The caller
// releases the returned room outside the lock.
func (c *Controller) teardownLocked() (Room, []Subscription) {
	if c.expiry != nil {
		c.expiry.Stop()
		c.expiry = nil
	}
	if c.stopTick != nil {
		close(c.stopTick)
		c.stopTick = nil
	}
	c.toggling = false
	room, subs := c.room, c.roomSubs
	c.room, c.roomSubs = nil, nil
	return room, subs
}

func releaseRoom(room Room, subs []Subscription) {
	if room == nil {
		return
	}
	for _, s := range subs {
		room.Release(s)
	}
	room.Disconnect()
}

func (c *Controller) elapsedLocked() int {
	elapsed := int(c.clock.Since(c.startedAt) / time.Second)
	if ceiling := int(c.opts.MaxCallDuration / time.Second); elapsed > ceiling {
		elapsed = ceiling
	}
	return elapsed
}

func (c *Controller) tickLoop(gen uint64, ticker clockwork.Ticker, stop <-chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			c.tick(gen)
		}
	}
}

func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.session.State != callmodel.StateInCall {
		return
	}
	c.session.ElapsedSeconds = c.elapsedLocked()
	c.emitLocked(Event{
		Kind:      EventTick,
		SessionID: c.session.ID,
		Data: Tick{
			ElapsedSeconds: c.session.ElapsedSeconds,
			Display:        callmodel.FormatElapsed(c.session.ElapsedSeconds),
		},
	})
}

// watchRoom re-publishes room events for the live call and ends the call when the room drops.
func (c *Controller) watchRoom(gen uint64, room Room) []Subscription {
	forward := func(e Event) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.gen || c.session.State != callmodel.StateInCall {
			return
		}
		e.SessionID = c.session.ID
		c.emitLocked(e)
	}

	return []Subscription{
		room.Subscribe(EventTrackSubscribed, forward),
		room.Subscribe(EventTrackUnsubscribed, forward),
		room.Subscribe(EventActiveSpeakers, func(e Event) {
			speakers, _ := e.Data.([]Speaker)
			forward(Event{Kind: EventAgentSpeaking, Data: AgentSpeaking(speakers)})
		}),
		room.Subscribe(EventRoomDisconnected, func(Event) {
			_ = c.end(gen, TransitionDisconnect, callmodel.EndReasonRemote)
		}),
	}
}

func (c *Controller) enableMicrophone(gen uint64, room Room) {
	err := room.SetMicrophoneEnabled(true)
	if err == nil {
		return
	}

	log.Warn().Err(err).Str("component", "call").Msg("error enabling microphone")
	if !errors.Is(err, ErrPermissionDenied) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.session.State != callmodel.StateInCall {
		return
	}
	c.emitLocked(Event{
		Kind:      EventPermissionDenied,
		SessionID: c.session.ID,
		Data:      "Please allow microphone access to talk with " + c.opts.AgentName + ".",
	})
}

func (c *Controller) emitStateLocked(t Transition) {
	c.emitLocked(Event{
		Kind:      EventStateChanged,
		SessionID: c.session.ID,
		Data:      StateChange{Transition: t, Session: c.session},
	})
}

// emitLocked queues e for the dispatcher. Queue order follows c.mu acquisition order.
func (c *Controller) emitLocked(e Event) {
	c.qmu.Lock()
	c.queue = append(c.queue, e)
	c.qmu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Controller) dispatch() {
	for {
		select {
		case <-c.notify:
			c.drain()
		case <-c.done:
			c.drain()
			return
		}
	}
}

func (c *Controller) drain() {
	for {
		c.qmu.Lock()
		batch := c.queue
		c.queue = nil
		c.qmu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, e := range batch {
			c.bus.Publish(e)
		}
	}
}
