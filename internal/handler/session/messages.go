package session

import (
	"encoding/json"

	callmodel "github.com/zhouzirui/tara-call/backend/internal/model/call"
	callservice "github.com/zhouzirui/tara-call/backend/internal/service/call"
)

// 浏览器发来的指令
const (
	cmdConnect        = "connect"
	cmdDisconnect     = "disconnect"
	cmdToggleMute     = "toggle_mute"
	cmdTaskCompleted  = "task_completed"
	cmdHumanScore     = "human_score"
	cmdSubmitFeedback = "submit_feedback"
	cmdSkipFeedback   = "skip_feedback"
)

// 浏览器上报的媒体房间事件
const (
	reportJoined            = "joined"
	reportJoinFailed        = "join_failed"
	reportMicrophone        = "microphone"
	reportTrackSubscribed   = "track_subscribed"
	reportTrackUnsubscribed = "track_unsubscribed"
	reportActiveSpeakers    = "active_speakers"
	reportRoomDisconnected  = "room_disconnected"
)

// 服务端推送的消息类型
const (
	msgState         = "state"
	msgTick          = "tick"
	msgMute          = "mute"
	msgSpeaking      = "speaking"
	msgAlert         = "alert"
	msgError         = "error"
	msgJoin          = "join"
	msgLeave         = "leave"
	msgSetMicrophone = "set_microphone"
)

type inboundMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type taskCompletedData struct {
	Value *bool `json:"value"`
}

type humanScoreData struct {
	Score *int `json:"score"`
}

type submitFeedbackData struct {
	Text string `json:"text"`
}

// reportData 是浏览器对 join / set_microphone 的应答以及房间事件的载荷
type reportData struct {
	Error            string                `json:"error,omitempty"`
	PermissionDenied bool                  `json:"permissionDenied,omitempty"`
	Track            callservice.Track     `json:"track"`
	Speakers         []callservice.Speaker `json:"speakers,omitempty"`
}

type joinData struct {
	callmodel.ConnectionDetails
}

type setMicrophoneData struct {
	Enabled bool `json:"enabled"`
}

type stateData struct {
	Transition callservice.Transition `json:"transition,omitempty"`
	Session    callmodel.Session      `json:"session"`
	Display    string                 `json:"display"`
}

type speakingData struct {
	AgentSpeaking bool `json:"agentSpeaking"`
}

type muteData struct {
	Muted bool `json:"muted"`
}

type messageData struct {
	Message string `json:"message"`
}
