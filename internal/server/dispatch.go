package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/bullpen/internal/agent"
	"github.com/zulandar/bullpen/internal/conversation"
	"github.com/zulandar/bullpen/internal/dispatch"
	"github.com/zulandar/bullpen/internal/notify"
	"go.uber.org/zap"
)

type resolveRequest struct {
	ConversationID string                 `json:"conversationId"`
	Messages       []conversation.Message `json:"messages"`
}

// resolveDispatch runs the approved dispatch parts of a chat turn and
// streams the outcome as server-sent events: one dispatch-result per
// executed call, then messages with the updated list, then done.
//
// When conversationId is given the conversation must belong to the user,
// its stored messages are used if the body carries none, and the updated
// list is saved back before streaming starts whenever a call settled,
// including calls that failed.
func (h *handlers) resolveDispatch(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	userID := currentUser(c)

	if req.ConversationID != "" {
		conv, err := conversation.Get(h.db, req.ConversationID, userID)
		if err != nil {
			writeError(c, err)
			return
		}
		if len(req.Messages) == 0 {
			stored, err := conversation.Messages(conv)
			if err != nil {
				writeError(c, err)
				return
			}
			req.Messages = stored
		}
	}
	if len(req.Messages) == 0 {
		badRequest(c, "messages are required")
		return
	}

	agents, err := agent.List(h.db, userID, agent.ListFilters{})
	if err != nil {
		writeError(c, err)
		return
	}

	messages, executed := h.resolver.Resolve(c.Request.Context(), req.Messages, agents, userID, req.ConversationID)

	if req.ConversationID != "" && dispatch.Settled(req.Messages, messages) {
		if err := conversation.SaveMessages(h.db, req.ConversationID, userID, messages); err != nil {
			writeError(c, err)
			return
		}
	}
	h.notifyExecuted(userID, executed)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	for _, e := range executed {
		if err := writeSSE(c.Writer, "dispatch-result", e); err != nil {
			h.logger.Warn("write dispatch result", zap.Error(err))
			return
		}
	}
	if err := writeSSE(c.Writer, "messages", messages); err != nil {
		h.logger.Warn("write messages", zap.Error(err))
		return
	}
	writeSSE(c.Writer, "done", gin.H{"executed": len(executed)})
	c.Writer.Flush()
}

func (h *handlers) notifyExecuted(userID string, executed []dispatch.Executed) {
	if h.notifier == nil {
		return
	}
	for _, e := range executed {
		evt := notify.Event{
			UserID:       userID,
			AgentName:    e.Output.AgentName,
			ExecutionID:  e.Output.ExecutionID,
			TaskThreadID: e.Output.TaskThreadID,
			ToolCallID:   e.ToolCallID,
			Result:       e.Output.Result,
		}
		h.runner.Go("notify.dispatch", func(ctx context.Context) error {
			return h.notifier.Notify(ctx, evt)
		})
	}
}
