package handler

import (
	"errors"
	"net/http"

	"cartflow/internal/api/dto"
	"cartflow/internal/domain"
	"cartflow/internal/engine"
	"cartflow/internal/orders"
	"cartflow/internal/saga"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WorkflowHandler is the thin HTTP glue over the engine. It owns no
// orchestration logic; it binds requests, resolves saga steps from the
// order-service registry, and maps typed engine errors to status codes.
type WorkflowHandler struct {
	engine *engine.Engine
	steps  orders.StepRegistry
}

func NewWorkflowHandler(eng *engine.Engine, steps orders.StepRegistry) *WorkflowHandler {
	return &WorkflowHandler{engine: eng, steps: steps}
}

func (h *WorkflowHandler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api/v1")
	{
		api.POST("/workflows", h.CreateWorkflow)
		api.POST("/workflows/from-template", h.ApplyTemplate)
		api.GET("/workflows/:id", h.GetWorkflow)
		api.GET("/workflows/:id/history", h.GetHistory)
		api.POST("/workflows/:id/events", h.Transition)
		api.POST("/workflows/:id/cancel", h.Cancel)
		api.POST("/workflows/:id/retry", h.Retry)
		api.POST("/workflows/:id/saga", h.ExecuteSaga)
	}
}

func (h *WorkflowHandler) CreateWorkflow(c *gin.Context) {
	var req dto.CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	instance, err := h.engine.CreateFromDefinition(c.Request.Context(), req.DefinitionID, req.Context)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewWorkflowResponse(instance))
}

func (h *WorkflowHandler) ApplyTemplate(c *gin.Context) {
	var req dto.ApplyTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	instance, err := h.engine.ApplyTemplate(c.Request.Context(), req.TemplateID, req.Parameters)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewWorkflowResponse(instance))
}

func (h *WorkflowHandler) GetWorkflow(c *gin.Context) {
	id, ok := workflowID(c)
	if !ok {
		return
	}
	instance, err := h.engine.GetWorkflow(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewWorkflowResponse(instance))
}

func (h *WorkflowHandler) GetHistory(c *gin.Context) {
	id, ok := workflowID(c)
	if !ok {
		return
	}
	records, err := h.engine.GetWorkflowHistory(c.Request.Context(), id, 0)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": records})
}

func (h *WorkflowHandler) Transition(c *gin.Context) {
	id, ok := workflowID(c)
	if !ok {
		return
	}
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	instance, err := h.engine.Transition(c.Request.Context(), id, domain.TransitionEvent{Type: req.Type, Data: req.Data})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewWorkflowResponse(instance))
}

func (h *WorkflowHandler) Cancel(c *gin.Context) {
	id, ok := workflowID(c)
	if !ok {
		return
	}
	var req dto.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	instance, err := h.engine.CancelWorkflow(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewWorkflowResponse(instance))
}

func (h *WorkflowHandler) Retry(c *gin.Context) {
	id, ok := workflowID(c)
	if !ok {
		return
	}
	instance, err := h.engine.RetryFailedWorkflow(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewWorkflowResponse(instance))
}

func (h *WorkflowHandler) ExecuteSaga(c *gin.Context) {
	id, ok := workflowID(c)
	if !ok {
		return
	}
	var req dto.ExecuteSagaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	steps, err := h.steps.Resolve(req.Steps)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.engine.ExecuteSaga(c.Request.Context(), id, steps, req.Data, saga.Strategy(req.Strategy))
	resp := sagaResponse(result, err)
	if err != nil {
		var stepErr *domain.StepFailedError
		if errors.As(err, &stepErr) {
			c.JSON(http.StatusUnprocessableEntity, resp)
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func workflowID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return uuid.Nil, false
	}
	return id, true
}

func sagaResponse(result *saga.Result, err error) dto.SagaResponse {
	resp := dto.SagaResponse{}
	if err != nil {
		resp.Error = err.Error()
	}
	if result == nil {
		return resp
	}
	resp.Success = result.Success
	for _, r := range result.Results {
		resp.Results = append(resp.Results, dto.SagaStepResult{Step: r.Step, Output: r.Output})
	}
	for _, a := range result.Compensations {
		comp := dto.Compensation{Step: a.Step, Ok: a.OK()}
		if a.Err != nil {
			comp.Error = a.Err.Error()
		}
		resp.Compensations = append(resp.Compensations, comp)
	}
	return resp
}

// respondError maps the engine's typed errors onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	var (
		invalidDef    *domain.InvalidDefinitionError
		invalidTrans  *domain.InvalidTransitionError
		missingParam  *domain.MissingParameterError
		conflict      *domain.ConcurrencyConflictError
		invalidCancel *domain.InvalidCancellationError
		invalidRetry  *domain.InvalidRetryError
	)

	switch {
	case errors.Is(err, domain.ErrWorkflowNotFound),
		errors.Is(err, domain.ErrDefinitionNotFound),
		errors.Is(err, domain.ErrTemplateNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &invalidDef),
		errors.As(err, &invalidTrans),
		errors.As(err, &missingParam):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &conflict),
		errors.As(err, &invalidCancel),
		errors.As(err, &invalidRetry):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
