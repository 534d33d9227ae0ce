package call

import (
	"context"

	"github.com/pkg/errors"

	callmodel "github.com/zhouzirui/tara-call/backend/internal/model/call"
	"github.com/zhouzirui/tara-call/backend/internal/model/feedback"
)

// ErrPermissionDenied is returned by Room.SetMicrophoneEnabled when the user refused microphone access.
var ErrPermissionDenied = errors.New("microphone permission denied")

// Track identifies a media track a participant published.
type Track struct {
	ParticipantSID string `json:"participantSid"`
	Kind           string `json:"kind"`
}

// Speaker is one entry of an active-speakers update.
type Speaker struct {
	Identity string `json:"identity"`
	IsLocal  bool   `json:"isLocal"`
	Speaking bool   `json:"speaking"`
}

// Room is a joined media room. Implementations publish EventTrackSubscribed,
// EventTrackUnsubscribed, EventActiveSpeakers and EventRoomDisconnected.
type Room interface {
	Subscribe(kind EventKind, h Handler) Subscription
	Release(s Subscription) bool
	SetMicrophoneEnabled(enabled bool) error
	Disconnect()
}

// Transport joins a media room with issued connection details.
type Transport interface {
	Join(ctx context.Context, details callmodel.ConnectionDetails) (Room, error)
}

// CredentialSource fetches join credentials.
type CredentialSource interface {
	FetchCredential(ctx context.Context) (callmodel.ConnectionDetails, error)
}

// CredentialSourceFunc adapts a function to CredentialSource.
type CredentialSourceFunc func(ctx context.Context) (callmodel.ConnectionDetails, error)

func (f CredentialSourceFunc) FetchCredential(ctx context.Context) (callmodel.ConnectionDetails, error) {
	return f(ctx)
}

// FeedbackSink accepts a finished feedback submission.
type FeedbackSink interface {
	SubmitFeedback(ctx context.Context, sub feedback.Submission) error
}

// FeedbackSinkFunc adapts a function to FeedbackSink.
type FeedbackSinkFunc func(ctx context.Context, sub feedback.Submission) error

func (f FeedbackSinkFunc) SubmitFeedback(ctx context.Context, sub feedback.Submission) error {
	return f(ctx, sub)
}

// AgentSpeaking reports whether any remote participant is currently speaking.
func AgentSpeaking(speakers []Speaker) bool {
	for _, s := range speakers {
		if !s.IsLocal && s.Speaking {
			return true
		}
	}
	return false
}
