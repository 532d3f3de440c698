package feedback

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zulandar/bullpen/internal/db/dbtest"
	"github.com/zulandar/bullpen/internal/models"
)

func TestSubmit(t *testing.T) {
	db := dbtest.Open(t)

	fb, err := Submit(db, SubmitOpts{
		UserID:      "user-1",
		AgentID:     "agent-1",
		ExecutionID: "exec-1",
		Rating:      models.RatingNegative,
		Correction:  "  cite sources  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "cite sources", fb.Correction)
	require.NotNil(t, fb.ExecutionID)
	assert.Equal(t, "exec-1", *fb.ExecutionID)
}

func TestSubmit_InvalidRating(t *testing.T) {
	db := dbtest.Open(t)

	for _, rating := range []string{"", "meh", "POSITIVE"} {
		_, err := Submit(db, SubmitOpts{UserID: "user-1", AgentID: "agent-1", Rating: rating})
		assert.True(t, errors.Is(err, ErrInvalidRating), "Submit(%q) error = %v, want ErrInvalidRating", rating, err)
	}
}

func TestSubmit_SameExecutionTwice(t *testing.T) {
	db := dbtest.Open(t)

	_, err := Submit(db, SubmitOpts{UserID: "user-1", AgentID: "agent-1", ExecutionID: "exec-1", Rating: models.RatingNegative})
	require.NoError(t, err)
	_, err = Submit(db, SubmitOpts{UserID: "user-1", AgentID: "agent-1", ExecutionID: "exec-1", Rating: models.RatingNegative, Correction: "shorter"})
	require.NoError(t, err)

	rows, err := ListSince(db, "agent-1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestListSince(t *testing.T) {
	db := dbtest.Open(t)

	old, err := Submit(db, SubmitOpts{UserID: "user-1", AgentID: "agent-1", Rating: models.RatingPositive})
	require.NoError(t, err)
	marker := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(old).Update("created_at", marker.Add(-time.Minute)).Error)

	_, err = Submit(db, SubmitOpts{UserID: "user-1", AgentID: "agent-1", Rating: models.RatingNegative})
	require.NoError(t, err)
	_, err = Submit(db, SubmitOpts{UserID: "user-1", AgentID: "agent-2", Rating: models.RatingNegative})
	require.NoError(t, err)

	all, err := ListSince(db, "agent-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, old.ID, all[0].ID)

	recent, err := ListSince(db, "agent-1", marker)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, models.RatingNegative, recent[0].Rating)
}

func TestListForAgent_Limit(t *testing.T) {
	db := dbtest.Open(t)
	for i := 0; i < 3; i++ {
		_, err := Submit(db, SubmitOpts{UserID: "user-1", AgentID: "agent-1", Rating: models.RatingPositive})
		require.NoError(t, err)
	}

	rows, err := ListForAgent(db, "agent-1", 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSummarize(t *testing.T) {
	db := dbtest.Open(t)

	empty, err := Summarize(db, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, Summary{}, empty)

	for _, o := range []SubmitOpts{
		{Rating: models.RatingPositive},
		{Rating: models.RatingPositive},
		{Rating: models.RatingNegative, Correction: "be brief"},
		{Rating: models.RatingNegative},
		{Rating: models.RatingPositive, Correction: "also add links"},
	} {
		o.UserID, o.AgentID = "user-1", "agent-1"
		_, err := Submit(db, o)
		require.NoError(t, err)
	}

	s, err := Summarize(db, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.Positive)
	assert.Equal(t, int64(2), s.Negative)
	assert.Equal(t, int64(2), s.Corrections)
	assert.NotNil(t, s.LastAt)
}

func TestActionable(t *testing.T) {
	tests := []struct {
		name string
		rows []models.AgentFeedback
		want bool
	}{
		{"empty", nil, false},
		{"all positive", []models.AgentFeedback{{Rating: models.RatingPositive}, {Rating: models.RatingPositive}}, false},
		{"blank correction", []models.AgentFeedback{{Rating: models.RatingPositive, Correction: "   "}}, false},
		{"one negative", []models.AgentFeedback{{Rating: models.RatingPositive}, {Rating: models.RatingNegative}}, true},
		{"positive with correction", []models.AgentFeedback{{Rating: models.RatingPositive, Correction: "shorter"}}, true},
	}
	for _, tt := range tests {
		if got := Actionable(tt.rows); got != tt.want {
			t.Errorf("%s: Actionable() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
