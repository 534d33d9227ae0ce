package feedback

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/tara-call/backend/internal/metrics"
	"github.com/zhouzirui/tara-call/backend/internal/model/feedback"
)

// DefaultAgent tags records when no agent is configured.
const DefaultAgent = "tara"

var (
	ErrInvalidPayload = errors.New("invalid feedback data")
	ErrStoreFailed    = errors.New("failed to save feedback")
)

// storeError 保留存储层的原始错误，同时满足 errors.Is(err, ErrStoreFailed)。
type storeError struct{ cause error }

func (e *storeError) Error() string { return ErrStoreFailed.Error() + ": " + e.cause.Error() }

func (e *storeError) Unwrap() error { return e.cause }

func (e *storeError) Is(target error) bool { return target == ErrStoreFailed }

// payload mirrors Submission with pointer fields so absent keys and nulls are detectable.
type payload struct {
	TaskCompleted *bool    `json:"taskCompleted"`
	HumanScore    *float64 `json:"humanScore"`
	FeedbackText  *string  `json:"feedbackText"`
	Timestamp     *string  `json:"timestamp"`
}

// Decode reads a submission and checks its shape: a boolean, a number, and two strings.
// humanScore must be a whole number on the 1-5 scale.
func Decode(r io.Reader) (feedback.Submission, error) {
	var p payload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return feedback.Submission{}, errors.Wrap(ErrInvalidPayload, err.Error())
	}

	if p.TaskCompleted == nil || p.HumanScore == nil || p.FeedbackText == nil || p.Timestamp == nil {
		return feedback.Submission{}, ErrInvalidPayload
	}

	score := *p.HumanScore
	if score != math.Trunc(score) || !feedback.ValidScore(int(score)) {
		return feedback.Submission{}, errors.Wrap(ErrInvalidPayload, feedback.ErrScoreOutOfRange.Error())
	}

	return feedback.Submission{
		TaskCompleted: *p.TaskCompleted,
		HumanScore:    int(score),
		FeedbackText:  *p.FeedbackText,
		Timestamp:     *p.Timestamp,
	}, nil
}

// Service normalizes submissions and forwards them to the store.
type Service struct {
	store   feedback.Store
	agent   string
	timeout time.Duration
	metrics *metrics.Recorder
	now     func() time.Time
}

// Options configures a Service. Zero values pick defaults.
type Options struct {
	Agent   string
	Timeout time.Duration
	Metrics *metrics.Recorder
}

// NewService wires the sink to an explicitly constructed store.
func NewService(store feedback.Store, opts Options) *Service {
	if opts.Agent == "" {
		opts.Agent = DefaultAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop()
	}
	return &Service{
		store:   store,
		agent:   opts.Agent,
		timeout: opts.Timeout,
		metrics: opts.Metrics,
		now:     time.Now,
	}
}

// Normalize fills the timestamp when empty and returns the storage record.
func (s *Service) Normalize(sub feedback.Submission) (feedback.Submission, feedback.Record) {
	if sub.Timestamp == "" {
		sub.Timestamp = s.now().UTC().Format(time.RFC3339)
	}
	return sub, sub.Record(s.agent)
}

// Submit persists one submission. It does not retry.
func (s *Service) Submit(ctx context.Context, sub feedback.Submission) error {
	if !feedback.ValidScore(sub.HumanScore) {
		return errors.Wrap(ErrInvalidPayload, feedback.ErrScoreOutOfRange.Error())
	}

	sub, record := s.Normalize(sub)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.store.Save(ctx, record); err != nil {
		s.metrics.FeedbackFailed(ctx, s.agent)
		log.Error().Err(err).
			Str("component", "feedback").
			Str("timestamp", sub.Timestamp).
			Msg("error saving feedback to database")
		return &storeError{cause: err}
	}

	s.metrics.FeedbackSaved(ctx, s.agent)
	log.Info().
		Str("component", "feedback").
		Bool("taskCompleted", record.TaskCompleted).
		Int("humanScore", record.HumanScore).
		Str("timestamp", sub.Timestamp).
		Msg("feedback saved")
	return nil
}
