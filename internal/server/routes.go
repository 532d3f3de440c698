package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zulandar/bullpen/internal/agent"
	"github.com/zulandar/bullpen/internal/conversation"
	"github.com/zulandar/bullpen/internal/detach"
	"github.com/zulandar/bullpen/internal/dispatch"
	"github.com/zulandar/bullpen/internal/execution"
	"github.com/zulandar/bullpen/internal/feedback"
	"github.com/zulandar/bullpen/internal/llm"
	"github.com/zulandar/bullpen/internal/notify"
	"github.com/zulandar/bullpen/internal/usage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type handlers struct {
	db       *gorm.DB
	resolver *dispatch.Resolver
	evolver  Evolver
	notifier notify.Notifier
	runner   *detach.Runner
	logger   *zap.Logger
}

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api", requireUser())

	api.GET("/agents", h.listAgents)
	api.POST("/agents", h.createAgent)
	api.GET("/agents/:id", h.getAgent)
	api.PATCH("/agents/:id", h.updateAgent)
	api.DELETE("/agents/:id", h.archiveAgent)
	api.PUT("/agents/:id/prompt", h.updatePrompt)
	api.GET("/agents/:id/versions", h.listVersions)
	api.POST("/agents/:id/versions/:versionId/revert", h.revertVersion)
	api.GET("/agents/:id/feedback", h.listFeedback)
	api.POST("/agents/:id/feedback", h.submitFeedback)
	api.GET("/agents/:id/feedback/summary", h.feedbackSummary)

	api.GET("/executions", h.listExecutions)
	api.GET("/executions/:id", h.getExecution)

	api.POST("/dispatch/resolve", h.resolveDispatch)

	api.GET("/usage", h.usageSummary)

	api.GET("/settings", h.getSettings)
	api.PUT("/settings", h.updateSettings)
}

// writeError maps store errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, agent.ErrNotFound),
		errors.Is(err, execution.ErrNotFound),
		errors.Is(err, conversation.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, feedback.ErrInvalidRating):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// --- Agents ---

type createAgentRequest struct {
	Name           string `json:"name" binding:"required"`
	Slug           string `json:"slug"`
	Description    string `json:"description"`
	SystemPrompt   string `json:"systemPrompt" binding:"required"`
	PreferredModel string `json:"preferredModel"`
}

type updateAgentRequest struct {
	Name           *string `json:"name"`
	Description    *string `json:"description"`
	PreferredModel *string `json:"preferredModel"`
}

type updatePromptRequest struct {
	SystemPrompt string `json:"systemPrompt" binding:"required"`
	Summary      string `json:"summary"`
}

func (h *handlers) listAgents(c *gin.Context) {
	agents, err := agent.List(h.db, currentUser(c), agent.ListFilters{
		IncludeArchived: c.Query("archived") == "true",
		StartersOnly:    c.Query("starters") == "true",
	})
	if err != nil {
		writeError(c, err)
		return
	}
	views := make([]agentView, len(agents))
	for i := range agents {
		views[i] = newAgentView(&agents[i])
	}
	c.JSON(http.StatusOK, gin.H{"agents": views})
}

func (h *handlers) createAgent(c *gin.Context) {
	var req createAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	a, err := agent.Create(h.db, agent.CreateOpts{
		UserID:         currentUser(c),
		Name:           req.Name,
		Slug:           req.Slug,
		Description:    req.Description,
		SystemPrompt:   req.SystemPrompt,
		PreferredModel: req.PreferredModel,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newAgentView(a))
}

func (h *handlers) getAgent(c *gin.Context) {
	a, err := agent.Get(h.db, c.Param("id"), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAgentView(a))
}

func (h *handlers) updateAgent(c *gin.Context) {
	var req updateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	a, err := agent.Update(h.db, c.Param("id"), currentUser(c), agent.UpdateOpts{
		Name:           req.Name,
		Description:    req.Description,
		PreferredModel: req.PreferredModel,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAgentView(a))
}

func (h *handlers) archiveAgent(c *gin.Context) {
	if err := agent.Archive(h.db, c.Param("id"), currentUser(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) updatePrompt(c *gin.Context) {
	var req updatePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	a, err := agent.UpdatePrompt(h.db, c.Param("id"), currentUser(c), req.SystemPrompt, req.Summary)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAgentView(a))
}

func (h *handlers) listVersions(c *gin.Context) {
	a, err := agent.Get(h.db, c.Param("id"), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	versions, err := agent.ListVersions(h.db, a.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	views := make([]versionView, len(versions))
	for i := range versions {
		views[i] = newVersionView(&versions[i])
	}
	c.JSON(http.StatusOK, gin.H{"versions": views})
}

func (h *handlers) revertVersion(c *gin.Context) {
	a, err := agent.Revert(h.db, c.Param("id"), c.Param("versionId"), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAgentView(a))
}

// --- Feedback ---

type feedbackRequest struct {
	Rating      string `json:"rating" binding:"required"`
	Correction  string `json:"correction"`
	ExecutionID string `json:"executionId"`
}

func (h *handlers) submitFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	userID := currentUser(c)
	a, err := agent.Get(h.db, c.Param("id"), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if req.ExecutionID != "" {
		exec, err := execution.Get(h.db, req.ExecutionID, userID)
		if err != nil {
			writeError(c, err)
			return
		}
		if exec.AgentID != a.ID {
			badRequest(c, "execution belongs to a different agent")
			return
		}
	}

	fb, err := feedback.Submit(h.db, feedback.SubmitOpts{
		UserID:      userID,
		AgentID:     a.ID,
		ExecutionID: req.ExecutionID,
		Rating:      req.Rating,
		Correction:  req.Correction,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if h.evolver != nil {
		h.evolver.Trigger(a.ID, userID)
	}
	c.JSON(http.StatusCreated, newFeedbackView(fb))
}

func (h *handlers) listFeedback(c *gin.Context) {
	a, err := agent.Get(h.db, c.Param("id"), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	rows, err := feedback.ListForAgent(h.db, a.ID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	views := make([]feedbackView, len(rows))
	for i := range rows {
		views[i] = newFeedbackView(&rows[i])
	}
	c.JSON(http.StatusOK, gin.H{"feedback": views})
}

func (h *handlers) feedbackSummary(c *gin.Context) {
	a, err := agent.Get(h.db, c.Param("id"), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	summary, err := feedback.Summarize(h.db, a.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// --- Executions ---

func (h *handlers) listExecutions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	rows, err := execution.List(h.db, currentUser(c), execution.ListFilters{
		AgentID: c.Query("agentId"),
		Status:  c.Query("status"),
		Limit:   limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	views := make([]executionView, len(rows))
	for i := range rows {
		views[i] = newExecutionView(&rows[i])
	}
	c.JSON(http.StatusOK, gin.H{"executions": views})
}

func (h *handlers) getExecution(c *gin.Context) {
	e, err := execution.Get(h.db, c.Param("id"), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newExecutionView(e))
}

// --- Usage ---

func (h *handlers) usageSummary(c *gin.Context) {
	totals, err := usage.Summarize(h.db, currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": totals})
}

// --- Settings ---

type settingsRequest struct {
	DefaultModel string `json:"defaultModel"`
}

func (h *handlers) getSettings(c *gin.Context) {
	model, err := llm.UserDefault(h.db, currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"defaultModel": model})
}

func (h *handlers) updateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.DefaultModel != "" {
		if _, _, err := llm.ParseModelID(req.DefaultModel); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	if err := llm.SetUserDefault(h.db, currentUser(c), req.DefaultModel); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"defaultModel": req.DefaultModel})
}
