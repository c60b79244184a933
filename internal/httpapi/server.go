// Package httpapi exposes the optimization service over HTTP: job
// submission, status, and cancellation; template rendering and
// validation; feedback and metric ingestion; queue statistics; health
// and Prometheus endpoints.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cursor-prompt/prompt-optimizer/internal/domain/optimization"
	"github.com/cursor-prompt/prompt-optimizer/internal/domain/template"
	"github.com/cursor-prompt/prompt-optimizer/internal/engine"
	"github.com/cursor-prompt/prompt-optimizer/internal/feedback"
	"github.com/cursor-prompt/prompt-optimizer/internal/queue"
	apperrors "github.com/cursor-prompt/prompt-optimizer/pkg/errors"
	"github.com/cursor-prompt/prompt-optimizer/pkg/healthcheck"
)

// Server wires the HTTP handlers to the queue, feedback loop, and engine.
type Server struct {
	queue  *queue.Queue
	loop   *feedback.Loop
	engine *engine.Engine
	health *healthcheck.HealthCheck
	logger *zap.Logger
}

// New constructs the Server. health may be nil to disable the health
// endpoints.
func New(q *queue.Queue, loop *feedback.Loop, eng *engine.Engine, health *healthcheck.HealthCheck, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{queue: q, loop: loop, engine: eng, health: health, logger: logger.Named("httpapi")}
}

// Router builds the gin engine with every route registered. gatherer may
// be nil to skip the /metrics endpoint.
func (s *Server) Router(gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	v1 := router.Group("/api/v1")
	{
		v1.POST("/optimize", s.submitJob)
		v1.GET("/jobs/:id", s.getJob)
		v1.DELETE("/jobs/:id", s.cancelJob)
		v1.GET("/queue/stats", s.queueStats)

		v1.POST("/templates/render", s.renderTemplate)
		v1.POST("/templates/validate", s.validateTemplate)

		v1.POST("/feedback", s.submitFeedback)
		v1.POST("/metrics", s.submitMetric)
	}

	if s.health != nil {
		router.GET("/health", s.health.Handler())
		router.GET("/health/live", s.health.LivenessHandler())
		router.GET("/health/ready", s.health.ReadinessHandler())
	}
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

// submitJobRequest is the POST /api/v1/optimize payload.
type submitJobRequest struct {
	Template template.Template    `json:"template" binding:"required"`
	Request  optimization.Request `json:"request"`
	Priority string               `json:"priority,omitempty"`
	Retries  *int                 `json:"max_retries,omitempty"`
}

func (s *Server) submitJob(c *gin.Context) {
	var req submitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apperrors.NewValidationError(err.Error()))
		return
	}
	if err := req.Template.Validate(); err != nil {
		s.writeError(c, apperrors.NewValidationError(err.Error()))
		return
	}

	priority := optimization.Priority(req.Priority)
	switch priority {
	case "", optimization.PriorityUrgent, optimization.PriorityHigh,
		optimization.PriorityNormal, optimization.PriorityLow:
	default:
		s.writeError(c, apperrors.NewValidationError("unknown priority "+req.Priority))
		return
	}

	templateID := req.Template.ID
	if templateID == "" {
		templateID = req.Template.Name
	}

	// Make the template visible to the feedback loop for later
	// re-optimization.
	if s.loop != nil {
		tmpl := req.Template
		tmpl.ID = templateID
		s.loop.RegisterTemplate(tmpl)
	}

	jobID, err := s.queue.AddJob(templateID, req.Template, req.Request,
		queue.AddOptions{Priority: priority, MaxRetries: req.Retries})
	if err != nil {
		s.writeError(c, apperrors.New(apperrors.CategoryInternal, apperrors.CodeServiceUnavailable,
			apperrors.SeverityHigh, "queue rejected the job").WithCause(err))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "template_id": templateID})
}

func (s *Server) getJob(c *gin.Context) {
	job, err := s.queue.GetJob(c.Param("id"))
	if err != nil {
		s.writeError(c, apperrors.New(apperrors.CategoryValidation, apperrors.CodeNotFound,
			apperrors.SeverityLow, "job not found").WithEntity(c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, newJobView(job))
}

func (s *Server) cancelJob(c *gin.Context) {
	err := s.queue.CancelJob(c.Param("id"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			s.writeError(c, apperrors.New(apperrors.CategoryValidation, apperrors.CodeNotFound,
				apperrors.SeverityLow, "job not found").WithEntity(c.Param("id")))
			return
		}
		s.writeError(c, apperrors.Wrap(err, "cancel failed"))
		return
	}
	job, getErr := s.queue.GetJob(c.Param("id"))
	status := ""
	if getErr == nil {
		status = string(job.Status)
	}
	c.JSON(http.StatusOK, gin.H{"job_id": c.Param("id"), "status": status})
}

func (s *Server) queueStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.queue.GetStats())
}

// renderRequest is the POST /api/v1/templates/render payload.
type renderRequest struct {
	Template template.Template      `json:"template" binding:"required"`
	Context  map[string]interface{} `json:"context"`
}

func (s *Server) renderTemplate(c *gin.Context) {
	var req renderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apperrors.NewValidationError(err.Error()))
		return
	}

	renderCtx := template.RenderContext(req.Context)
	if errs := req.Template.ValidateVariables(renderCtx); len(errs) > 0 {
		messages := make([]string, len(errs))
		for i, err := range errs {
			messages[i] = err.Error()
		}
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "errors": messages})
		return
	}

	rendered, err := s.engine.Render(req.Template.Content, renderCtx)
	if err != nil {
		s.writeError(c, apperrors.Wrap(err, "render failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"rendered": rendered})
}

func (s *Server) validateTemplate(c *gin.Context) {
	var req renderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apperrors.NewValidationError(err.Error()))
		return
	}

	result, err := s.engine.ValidateContext(req.Template.Content, template.RenderContext(req.Context))
	if err != nil {
		s.writeError(c, apperrors.Wrap(err, "validation failed"))
		return
	}
	c.JSON(http.StatusOK, result)
}

// feedbackRequest is the POST /api/v1/feedback payload.
type feedbackRequest struct {
	TemplateID     string `json:"template_id" binding:"required"`
	OptimizationID string `json:"optimization_id,omitempty"`
	Rating         int    `json:"rating" binding:"required"`
	Category       string `json:"category" binding:"required"`
	Comment        string `json:"comment,omitempty"`
}

func (s *Server) submitFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apperrors.NewValidationError(err.Error()))
		return
	}

	err := s.loop.RecordFeedback(optimization.Feedback{
		TemplateID:     req.TemplateID,
		OptimizationID: req.OptimizationID,
		Rating:         req.Rating,
		Category:       optimization.FeedbackCategory(req.Category),
		Comment:        req.Comment,
	})
	if err != nil {
		s.writeError(c, apperrors.Wrap(err, "feedback rejected"))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"template_id": req.TemplateID})
}

// metricRequest is the POST /api/v1/metrics payload.
type metricRequest struct {
	TemplateID string                 `json:"template_id" binding:"required"`
	Type       string                 `json:"type" binding:"required"`
	Value      float64                `json:"value"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

func (s *Server) submitMetric(c *gin.Context) {
	var req metricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apperrors.NewValidationError(err.Error()))
		return
	}

	err := s.loop.RecordMetric(optimization.PerformanceMetric{
		TemplateID: req.TemplateID,
		Type:       optimization.MetricType(req.Type),
		Value:      req.Value,
		Context:    req.Context,
	})
	if err != nil {
		s.writeError(c, apperrors.Wrap(err, "metric rejected"))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"template_id": req.TemplateID})
}

// jobView is the wire form of a job snapshot.
type jobView struct {
	ID          string                 `json:"id"`
	TemplateID  string                 `json:"template_id"`
	Priority    string                 `json:"priority"`
	Status      string                 `json:"status"`
	Progress    int                    `json:"progress"`
	CurrentStep string                 `json:"current_step,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Result      *optimization.Result   `json:"result,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

func newJobView(job optimization.Job) jobView {
	view := jobView{
		ID:          job.ID,
		TemplateID:  job.TemplateID,
		Priority:    string(job.Priority),
		Status:      string(job.Status),
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		RetryCount:  job.RetryCount,
		MaxRetries:  job.MaxRetries,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		Result:      job.Result,
		Metadata:    job.Metadata,
	}
	if job.Err != nil {
		view.Error = job.Err.Error()
	}
	return view
}

func (s *Server) writeError(c *gin.Context, err *apperrors.AppError) {
	if err.Severity == apperrors.SeverityCritical || err.Severity == apperrors.SeverityHigh {
		s.logger.Error("request failed", zap.Error(err))
	} else {
		s.logger.Warn("request rejected", zap.Error(err))
	}
	c.JSON(err.StatusCode(), apperrors.ToErrorResponse(err, c.GetHeader("X-Request-ID")))
}
