package feedback

import (
	"time"

	"github.com/pkg/errors"
)

const (
	MinScore = 1
	MaxScore = 5
)

var (
	ErrTaskCompletedUnset = errors.New("taskCompleted is required")
	ErrHumanScoreUnset    = errors.New("humanScore is required")
	ErrScoreOutOfRange    = errors.New("humanScore must be between 1 and 5")
)

// Submission is the payload a caller posts after a call.
type Submission struct {
	TaskCompleted bool   `json:"taskCompleted"`
	HumanScore    int    `json:"humanScore"`
	FeedbackText  string `json:"feedbackText"`
	Timestamp     string `json:"timestamp"`
}

// Record is the normalized row handed to storage.
type Record struct {
	TaskCompleted bool   `json:"task_completed"`
	HumanScore    int    `json:"human_score"`
	FeedbackText  string `json:"feedback_text"`
	Agent         string `json:"agent"`
}

// Record tags the submission with the agent it was collected for.
func (s Submission) Record(agent string) Record {
	return Record{
		TaskCompleted: s.TaskCompleted,
		HumanScore:    s.HumanScore,
		FeedbackText:  s.FeedbackText,
		Agent:         agent,
	}
}

// ValidScore reports whether score is on the 1-5 scale.
func ValidScore(score int) bool {
	return score >= MinScore && score <= MaxScore
}

// Step is a page of the post-call feedback wizard.
type Step int

const (
	StepTaskCompleted Step = iota + 1
	StepHumanScore
	StepFeedbackText
)

// Draft accumulates wizard answers until they can be built into a Submission.
type Draft struct {
	taskCompleted *bool
	humanScore    *int
	text          string
}

// NewDraft returns an empty draft positioned on the first step.
func NewDraft() *Draft {
	return &Draft{}
}

// Step returns the first unanswered step.
func (d *Draft) Step() Step {
	switch {
	case d.taskCompleted == nil:
		return StepTaskCompleted
	case d.humanScore == nil:
		return StepHumanScore
	default:
		return StepFeedbackText
	}
}

func (d *Draft) SetTaskCompleted(v bool) {
	d.taskCompleted = &v
}

func (d *Draft) SetHumanScore(score int) error {
	if !ValidScore(score) {
		return ErrScoreOutOfRange
	}
	d.humanScore = &score
	return nil
}

func (d *Draft) SetFeedbackText(text string) {
	d.text = text
}

// Build freezes the draft. taskCompleted and humanScore must both have been answered.
func (d *Draft) Build(now time.Time) (Submission, error) {
	if d.taskCompleted == nil {
		return Submission{}, ErrTaskCompletedUnset
	}
	if d.humanScore == nil {
		return Submission{}, ErrHumanScoreUnset
	}
	return Submission{
		TaskCompleted: *d.taskCompleted,
		HumanScore:    *d.humanScore,
		FeedbackText:  d.text,
		Timestamp:     now.UTC().Format(time.RFC3339),
	}, nil
}
