package session

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/tara-call/backend/internal/config"
	"github.com/zhouzirui/tara-call/backend/internal/metrics"
	"github.com/zhouzirui/tara-call/backend/internal/model/agent"
	callmodel "github.com/zhouzirui/tara-call/backend/internal/model/call"
	"github.com/zhouzirui/tara-call/backend/internal/model/feedback"
	callservice "github.com/zhouzirui/tara-call/backend/internal/service/call"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Issuer 签发房间连接凭证。
type Issuer interface {
	Issue(ctx context.Context, agentID string) (callmodel.ConnectionDetails, error)
}

// Submitter 持久化一条反馈。
type Submitter interface {
	Submit(ctx context.Context, sub feedback.Submission) error
}

// Handler 每个 WebSocket 连接对应一个浏览器标签页，服务端为其维护一个通话会话。
type Handler struct {
	issuer   Issuer
	sink     Submitter
	agents   agent.Store
	call     config.CallConfig
	metrics  *metrics.Recorder
	upgrader websocket.Upgrader
}

// New 创建会话处理器
func New(issuer Issuer, sink Submitter, agents agent.Store, callCfg config.CallConfig, recorder *metrics.Recorder) *Handler {
	if callCfg.JoinTimeout <= 0 {
		callCfg.JoinTimeout = 20 * time.Second
	}
	return &Handler{
		issuer:  issuer,
		sink:    sink,
		agents:  agents,
		call:    callCfg,
		metrics: recorder,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册会话路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session/ws", h.handleWebSocket)
}

// conn 串行化对同一 WebSocket 的写操作
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(msg outgoingMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(msg)
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// tab 是一个连接上的会话状态
type tab struct {
	conn   *conn
	ctrl   *callservice.Controller
	bridge *bridge
	logger zerolog.Logger
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent")
	if agentID == "" {
		agentID = agent.DefaultID
	}
	profile, ok := h.agents.FindByID(agentID)
	if !ok {
		http.Error(w, "agent not found", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "session").Msg("upgrade failed")
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	t := h.newTab(&conn{ws: ws}, profile)
	defer t.close()

	t.logger.Info().Msg("session socket opened")

	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go pingLoop(ctx, t.conn)

	t.sendState(callservice.StateChange{Session: t.ctrl.Snapshot()})

	for {
		var msg inboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Warn().Err(err).Msg("read error")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		t.handleMessage(ctx, &msg)
	}
}

func (h *Handler) newTab(c *conn, profile agent.Agent) *tab {
	b := newBridge(c.write, h.call.JoinTimeout)

	creds := callservice.CredentialSourceFunc(func(ctx context.Context) (callmodel.ConnectionDetails, error) {
		return h.issuer.Issue(ctx, profile.ID)
	})
	sink := callservice.FeedbackSinkFunc(h.sink.Submit)

	ctrl := callservice.NewController(creds, b, sink, callservice.Options{
		MaxCallDuration:   h.call.MaxDuration,
		ConfirmationDelay: h.call.ConfirmationDelay,
		FailureResetDelay: h.call.FailureResetDelay,
		AgentName:         profile.Name,
		Metrics:           h.metrics,
	})

	t := &tab{
		conn:   c,
		ctrl:   ctrl,
		bridge: b,
		logger: log.With().Str("component", "session").Str("agent", profile.ID).Logger(),
	}
	t.subscribe()
	return t
}

// subscribe 把控制器事件转发给浏览器。控制器关闭后不再投递，订阅随之回收。
func (t *tab) subscribe() {
	t.ctrl.Subscribe(callservice.EventStateChanged, func(e callservice.Event) {
		t.sendState(e.Data.(callservice.StateChange))
	})
	t.ctrl.Subscribe(callservice.EventTick, func(e callservice.Event) {
		t.send(msgTick, e.SessionID, e.Data)
	})
	t.ctrl.Subscribe(callservice.EventMuteChanged, func(e callservice.Event) {
		t.send(msgMute, e.SessionID, muteData{Muted: e.Data.(bool)})
	})
	t.ctrl.Subscribe(callservice.EventAgentSpeaking, func(e callservice.Event) {
		t.send(msgSpeaking, e.SessionID, speakingData{AgentSpeaking: e.Data.(bool)})
	})
	t.ctrl.Subscribe(callservice.EventPermissionDenied, func(e callservice.Event) {
		t.send(msgAlert, e.SessionID, messageData{Message: e.Data.(string)})
	})
}

func (t *tab) close() {
	t.bridge.close()
	t.ctrl.Close()
	t.logger.Info().Msg("session socket closed")
}

func (t *tab) handleMessage(ctx context.Context, msg *inboundMessage) {
	switch msg.Type {
	case cmdConnect:
		go func() {
			if err := t.ctrl.Connect(ctx); errors.Is(err, callservice.ErrConnectInFlight) || errors.Is(err, callservice.ErrClosed) {
				t.sendError(err.Error())
			}
		}()
	case cmdDisconnect:
		t.reply(t.ctrl.Disconnect())
	case cmdToggleMute:
		go func() { t.reply(t.ctrl.ToggleMute()) }()
	case cmdTaskCompleted:
		var data taskCompletedData
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.Value == nil {
			t.sendError("invalid task_completed payload")
			return
		}
		t.reply(t.ctrl.AnswerTaskCompleted(*data.Value))
	case cmdHumanScore:
		var data humanScoreData
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.Score == nil {
			t.sendError("invalid human_score payload")
			return
		}
		t.reply(t.ctrl.AnswerHumanScore(*data.Score))
	case cmdSubmitFeedback:
		var data submitFeedbackData
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				t.sendError("invalid submit_feedback payload")
				return
			}
		}
		go func() { t.reply(t.ctrl.SubmitFeedback(ctx, data.Text)) }()
	case cmdSkipFeedback:
		t.reply(t.ctrl.SkipFeedback())
	case reportJoined, reportJoinFailed, reportMicrophone:
		if !t.bridge.resolve(*msg) {
			t.logger.Debug().Str("type", msg.Type).Str("requestId", msg.RequestID).Msg("unmatched reply")
		}
	case reportTrackSubscribed, reportTrackUnsubscribed, reportActiveSpeakers, reportRoomDisconnected:
		t.handleReport(msg)
	default:
		t.sendError("unsupported message type: " + msg.Type)
	}
}

// handleReport 把浏览器上报的房间事件交给当前房间的订阅者。
func (t *tab) handleReport(msg *inboundMessage) {
	room := t.bridge.current()
	if room == nil {
		return
	}
	data, err := decodeReport(*msg)
	if err != nil {
		t.sendError("invalid " + msg.Type + " payload")
		return
	}

	switch msg.Type {
	case reportTrackSubscribed:
		room.emit(callservice.EventTrackSubscribed, data.Track)
	case reportTrackUnsubscribed:
		room.emit(callservice.EventTrackUnsubscribed, data.Track)
	case reportActiveSpeakers:
		room.emit(callservice.EventActiveSpeakers, data.Speakers)
	case reportRoomDisconnected:
		room.emit(callservice.EventRoomDisconnected, nil)
	}
}

func decodeReport(msg inboundMessage) (reportData, error) {
	var data reportData
	if len(msg.Data) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return data, errors.Wrapf(err, "decode %s", msg.Type)
	}
	return data, nil
}

func (t *tab) reply(err error) {
	if err != nil {
		t.sendError(err.Error())
	}
}

func (t *tab) sendState(change callservice.StateChange) {
	t.send(msgState, change.Session.ID, stateData{
		Transition: change.Transition,
		Session:    change.Session,
		Display:    callmodel.FormatElapsed(change.Session.ElapsedSeconds),
	})
}

func (t *tab) send(msgType, sessionID string, data interface{}) {
	if err := t.conn.write(outgoingMessage{Type: msgType, SessionID: sessionID, Data: data}); err != nil {
		t.logger.Debug().Err(err).Str("type", msgType).Msg("write failed")
	}
}

func (t *tab) sendError(message string) {
	t.send(msgError, "", messageData{Message: message})
}

// pingLoop 定期发送ping消息
func pingLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
