package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftWalksSteps(t *testing.T) {
	d := NewDraft()
	assert.Equal(t, StepTaskCompleted, d.Step())

	d.SetTaskCompleted(true)
	assert.Equal(t, StepHumanScore, d.Step())

	require.NoError(t, d.SetHumanScore(4))
	assert.Equal(t, StepFeedbackText, d.Step())

	d.SetFeedbackText("booked for Tuesday")
	sub, err := d.Build(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, Submission{
		TaskCompleted: true,
		HumanScore:    4,
		FeedbackText:  "booked for Tuesday",
		Timestamp:     "2024-01-01T00:00:00Z",
	}, sub)
}

func TestDraftRequiresTaskCompleted(t *testing.T) {
	d := NewDraft()
	require.NoError(t, d.SetHumanScore(3))

	_, err := d.Build(time.Now())
	require.ErrorIs(t, err, ErrTaskCompletedUnset)
}

func TestDraftRequiresScore(t *testing.T) {
	d := NewDraft()
	d.SetTaskCompleted(false)

	_, err := d.Build(time.Now())
	require.ErrorIs(t, err, ErrHumanScoreUnset)
}

func TestDraftRejectsOutOfRangeScore(t *testing.T) {
	d := NewDraft()
	for _, score := range []int{0, 6, -1} {
		require.ErrorIs(t, d.SetHumanScore(score), ErrScoreOutOfRange)
	}
	assert.Equal(t, StepTaskCompleted, d.Step())
}

func TestMemoryStoreKeepsInsertionOrder(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Save(context.Background(), Record{HumanScore: 1}))
	require.NoError(t, s.Save(context.Background(), Record{HumanScore: 2}))

	records := s.Records()
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].HumanScore)
	assert.Equal(t, 2, records[1].HumanScore)
}
