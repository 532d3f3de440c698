package conversation

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zulandar/bullpen/internal/db/dbtest"
	"github.com/zulandar/bullpen/internal/models"
)

func TestCreateTaskThread(t *testing.T) {
	db := dbtest.Open(t)

	c, err := CreateTaskThread(db, "user-1", "coach-1", "Researcher", "Find three papers on sleep", "Here they are.")
	require.NoError(t, err)
	assert.Equal(t, models.ConversationTask, c.Type)
	require.NotNil(t, c.ParentID)
	assert.Equal(t, "coach-1", *c.ParentID)
	assert.Equal(t, "Researcher: Find three papers on sleep", c.Title)

	got, err := Get(db, c.ID, "user-1")
	require.NoError(t, err)
	msgs, err := Messages(got)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "Find three papers on sleep", msgs[0].Parts[0].Text)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Here they are.", msgs[1].Parts[0].Text)
}

func TestCreateTaskThread_NeverReuses(t *testing.T) {
	db := dbtest.Open(t)

	a, err := CreateTaskThread(db, "user-1", "coach-1", "R", "same task", "r1")
	require.NoError(t, err)
	b, err := CreateTaskThread(db, "user-1", "coach-1", "R", "same task", "r2")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	children, err := ListChildren(db, "coach-1", "user-1")
	require.NoError(t, err)
	assert.Len(t, children, 2)
}

func TestCreate_Validation(t *testing.T) {
	db := dbtest.Open(t)

	_, err := Create(db, CreateOpts{})
	assert.Error(t, err)
	_, err = Create(db, CreateOpts{UserID: "user-1", Type: "group"})
	assert.Error(t, err)

	c, err := Create(db, CreateOpts{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ConversationCoaching, c.Type)
	assert.Nil(t, c.ParentID)
	assert.Equal(t, "[]", c.Messages)
}

func TestGet_OwnershipEnforced(t *testing.T) {
	db := dbtest.Open(t)
	c, err := Create(db, CreateOpts{UserID: "user-1"})
	require.NoError(t, err)

	_, err = Get(db, c.ID, "user-2")
	assert.True(t, errors.Is(err, ErrNotFound), "error = %v, want ErrNotFound", err)
}

func TestSaveMessages(t *testing.T) {
	db := dbtest.Open(t)
	c, err := Create(db, CreateOpts{UserID: "user-1", Messages: []Message{TextMessage(RoleUser, "hi")}})
	require.NoError(t, err)

	msgs := []Message{TextMessage(RoleUser, "hi"), TextMessage(RoleAssistant, "hello")}
	require.NoError(t, SaveMessages(db, c.ID, "user-1", msgs))

	got, err := Get(db, c.ID, "user-1")
	require.NoError(t, err)
	decoded, err := Messages(got)
	require.NoError(t, err)
	assert.Equal(t, msgs, decoded)

	err = SaveMessages(db, c.ID, "user-2", msgs)
	assert.True(t, errors.Is(err, ErrNotFound), "error = %v, want ErrNotFound", err)
}

func TestMessages_Corrupt(t *testing.T) {
	_, err := Messages(&models.Conversation{ID: "c1", Messages: "{not json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode messages of c1")
}

func TestTaskTitle(t *testing.T) {
	long := strings.Repeat("x", 80)
	tests := []struct {
		agent string
		task  string
		want  string
	}{
		{"Coach", "Plan my week", "Coach: Plan my week"},
		{"Coach", "  first line\nsecond line", "Coach: first line"},
		{"Coach", long, "Coach: " + strings.Repeat("x", 60) + "..."},
		{"Coach", "   ", "Coach"},
	}
	for _, tt := range tests {
		if got := TaskTitle(tt.agent, tt.task); got != tt.want {
			t.Errorf("TaskTitle(%q, %q) = %q, want %q", tt.agent, tt.task, got, tt.want)
		}
	}
}

func TestPart_JSONShape(t *testing.T) {
	approved := true
	p := Part{
		Type:       "tool-dispatch_researcher",
		ToolCallID: "call-1",
		State:      "approval-responded",
		Approval:   &Approval{ID: "ap-1", Approved: &approved},
		Input:      json.RawMessage(`{"task":"t"}`),
	}
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "tool-dispatch_researcher",
		"toolCallId": "call-1",
		"state": "approval-responded",
		"approval": {"id": "ap-1", "approved": true},
		"input": {"task": "t"}
	}`, string(data))
}

func TestClone_Independent(t *testing.T) {
	approved := false
	orig := []Message{{
		Role: RoleAssistant,
		Parts: []Part{{
			Type:     "tool-dispatch_x",
			Approval: &Approval{Approved: &approved},
			Input:    json.RawMessage(`{"task":"t"}`),
		}},
	}}

	cp := Clone(orig)
	cp[0].Parts[0].State = "output-available"
	*cp[0].Parts[0].Approval.Approved = true
	cp[0].Parts[0].Input[2] = 'X'

	assert.Empty(t, orig[0].Parts[0].State)
	assert.False(t, *orig[0].Parts[0].Approval.Approved)
	assert.Equal(t, `{"task":"t"}`, string(orig[0].Parts[0].Input))
	assert.Nil(t, Clone(nil))
}
