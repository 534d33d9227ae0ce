package call

import "fmt"

// State is a position in the call-session lifecycle of one browser tab.
type State string

const (
	StateIdle            State = "idle"
	StateConnecting      State = "connecting"
	StateInCall          State = "in_call"
	StateError           State = "error"
	StateFeedbackCapture State = "feedback_capture"
	StateDone            State = "done"
)

// EndReason records what moved a session out of InCall.
type EndReason string

const (
	EndReasonUser    EndReason = "user"
	EndReasonExpired EndReason = "expired"
	EndReasonRemote  EndReason = "remote"
)

// ConnectionDetails is what the credential issuer hands to a caller.
type ConnectionDetails struct {
	ServerURL        string `json:"serverUrl"`
	RoomName         string `json:"roomName"`
	ParticipantName  string `json:"participantName"`
	ParticipantToken string `json:"participantToken"`
}

// Session is a point-in-time copy of a call session.
type Session struct {
	ID              string    `json:"id,omitempty"`
	State           State     `json:"state"`
	ServerURL       string    `json:"serverUrl,omitempty"`
	RoomName        string    `json:"roomName,omitempty"`
	ParticipantName string    `json:"participantName,omitempty"`
	Credential      string    `json:"-"`
	ElapsedSeconds  int       `json:"elapsedSeconds"`
	Muted           bool      `json:"muted"`
	Error           string    `json:"error,omitempty"`
	EndReason       EndReason `json:"endReason,omitempty"`
	FeedbackStep    int       `json:"feedbackStep,omitempty"`
	// Recorded reports whether the feedback sink acknowledged the submission.
	// Not serialized: the caller sees the same Done screen either way.
	Recorded bool `json:"-"`
}

// FormatElapsed renders seconds as MM:SS for the call timer.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
