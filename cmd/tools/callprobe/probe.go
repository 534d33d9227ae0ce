package main

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	callmodel "github.com/zhouzirui/tara-call/backend/internal/model/call"
	callservice "github.com/zhouzirui/tara-call/backend/internal/service/call"
)

type probeOptions struct {
	BaseURL       string
	Agent         string
	CallDuration  time.Duration
	MaxDuration   time.Duration
	TaskCompleted bool
	Score         int
	Text          string
	SkipFeedback  bool
	Timeout       time.Duration

	// resetDelay 仅供测试缩短 Done -> Idle 的等待
	resetDelay time.Duration
}

type probeResult struct {
	Room        string
	Participant string
	Elapsed     int
	EndReason   callmodel.EndReason
	Submitted   bool
	Recorded    bool
	FinalState  callmodel.State
	TicksSeen   int
}

func (r probeResult) String() string {
	return fmt.Sprintf("room=%s participant=%s elapsed=%s end=%s submitted=%t recorded=%t final=%s ticks=%d",
		r.Room, r.Participant, callmodel.FormatElapsed(r.Elapsed), r.EndReason, r.Submitted, r.Recorded, r.FinalState, r.TicksSeen)
}

// probe 用本地房间替代媒体连接，完整走一遍会话状态机。
func probe(ctx context.Context, opts probeOptions) (probeResult, error) {
	client := &http.Client{Timeout: opts.Timeout}
	creds := callservice.NewHTTPCredentialClient(opts.BaseURL, opts.Agent, client)
	sink := callservice.NewHTTPFeedbackClient(opts.BaseURL, client)

	ctrl := callservice.NewController(creds, callservice.NewLocalTransport(), sink, callservice.Options{
		MaxCallDuration:   opts.MaxDuration,
		ConfirmationDelay: opts.resetDelay,
		FailureResetDelay: opts.resetDelay,
	})
	defer ctrl.Close()

	states := make(chan callmodel.Session, 16)
	var ticks atomic.Int32
	ctrl.Subscribe(callservice.EventStateChanged, func(e callservice.Event) {
		change := e.Data.(callservice.StateChange)
		log.Debug().Str("state", string(change.Session.State)).Str("transition", string(change.Transition)).Msg("state changed")
		states <- change.Session
	})
	ctrl.Subscribe(callservice.EventTick, func(e callservice.Event) {
		ticks.Add(1)
		log.Debug().Str("elapsed", e.Data.(callservice.Tick).Display).Msg("tick")
	})

	var result probeResult
	if err := ctrl.Connect(ctx); err != nil {
		return result, errors.Wrap(err, "connect")
	}
	snap := ctrl.Snapshot()
	result.Room, result.Participant = snap.RoomName, snap.ParticipantName
	log.Info().Str("room", snap.RoomName).Str("participant", snap.ParticipantName).Msg("joined dry-run room")

	select {
	case <-time.After(opts.CallDuration):
		if err := ctrl.Disconnect(); err != nil && !errors.Is(err, callservice.ErrNotInCall) {
			return result, err
		}
	case <-ctx.Done():
		return result, ctx.Err()
	}

	ended, err := waitFor(ctx, states, callmodel.StateFeedbackCapture)
	if err != nil {
		return result, err
	}
	result.Elapsed, result.EndReason = ended.ElapsedSeconds, ended.EndReason
	log.Info().Str("reason", string(ended.EndReason)).Str("elapsed", callmodel.FormatElapsed(ended.ElapsedSeconds)).Msg("call ended")

	if opts.SkipFeedback {
		if err := ctrl.SkipFeedback(); err != nil {
			return result, err
		}
		result.FinalState = ctrl.Snapshot().State
		result.TicksSeen = int(ticks.Load())
		return result, nil
	}

	if err := ctrl.AnswerTaskCompleted(opts.TaskCompleted); err != nil {
		return result, err
	}
	if err := ctrl.AnswerHumanScore(opts.Score); err != nil {
		return result, err
	}
	if err := ctrl.SubmitFeedback(ctx, opts.Text); err != nil {
		return result, err
	}
	done := ctrl.Snapshot()
	result.Submitted, result.Recorded = true, done.Recorded
	if !done.Recorded {
		log.Warn().Msg("feedback submission failed; the caller would not be told")
	}

	final, err := waitFor(ctx, states, callmodel.StateIdle)
	if err != nil {
		return result, err
	}
	result.FinalState = final.State
	result.TicksSeen = int(ticks.Load())
	return result, nil
}

func waitFor(ctx context.Context, states <-chan callmodel.Session, want callmodel.State) (callmodel.Session, error) {
	for {
		select {
		case s := <-states:
			if s.State == want {
				return s, nil
			}
		case <-ctx.Done():
			return callmodel.Session{}, errors.Wrapf(ctx.Err(), "waiting for %s", want)
		}
	}
}
