// Package management exposes the router's HTTP API: rule and schedule
// administration, target and dead-letter inspection, and a PutEvents-style
// ingress endpoint.
package management

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"eventrouter/internal/constants"
	"eventrouter/internal/deadletter"
	"eventrouter/internal/dispatch"
	"eventrouter/internal/logger"
	"eventrouter/internal/rules"
	"eventrouter/internal/scheduler"
	"eventrouter/internal/targets"
	"eventrouter/pkg/errors"
	"eventrouter/pkg/models"
)

type RuleService interface {
	List() []rules.Rule
	Get(id string) (rules.Rule, error)
	Create(ctx context.Context, rule rules.Rule) (rules.Rule, error)
	Update(ctx context.Context, rule rules.Rule) (rules.Rule, error)
	Delete(ctx context.Context, id string) error
}

type Dispatcher interface {
	Submit(ctx context.Context, env models.Envelope) (dispatch.Receipt, error)
	Stats() dispatch.Stats
}

type ScheduleService interface {
	Add(sch scheduler.Schedule) error
	Remove(id string) bool
	Get(id string) (scheduler.Info, bool)
	List() []scheduler.Info
	PauseSchedule(id string) error
	ResumeSchedule(id string) error
	Pause()
	Resume()
	Paused() bool
}

type TargetLister interface {
	List() []targets.Descriptor
}

// Deps are the components served by the API. DeadLetters is nil when the
// configured sink cannot be listed.
type Deps struct {
	Rules       RuleService
	Dispatcher  Dispatcher
	Schedules   ScheduleService
	Targets     TargetLister
	DeadLetters deadletter.Lister
}

type BaseHandler struct {
	Logger logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	} else {
		h.Logger.InfowCtx(c.Request.Context(), "Request rejected", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, errors.ToErrorResponse(err))
}

func (h *BaseHandler) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err).WithMessage(err.Error())))
}

type Handler struct {
	BaseHandler
	deps Deps
	now  func() time.Time
}

func NewHandler(deps Deps, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{Logger: log},
		deps:        deps,
		now:         time.Now,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/events", h.PutEvents)
		v1.GET("/stats", h.GetStats)

		r := v1.Group("/rules")
		{
			r.GET("", h.ListRules)
			r.POST("", h.CreateRule)
			r.POST("/test-pattern", h.TestPattern)
			r.GET("/:id", h.GetRule)
			r.PUT("/:id", h.UpdateRule)
			r.DELETE("/:id", h.DeleteRule)
		}

		s := v1.Group("/schedules")
		{
			s.GET("", h.ListSchedules)
			s.POST("", h.CreateSchedule)
			s.PUT("/paused", h.SetSchedulerPaused)
			s.GET("/:id", h.GetSchedule)
			s.DELETE("/:id", h.DeleteSchedule)
			s.POST("/:id/pause", h.PauseSchedule)
			s.POST("/:id/resume", h.ResumeSchedule)
		}

		v1.GET("/targets", h.ListTargets)
		v1.GET("/dead-letters", h.ListDeadLetters)
	}
}

// PutEvents godoc
// @Summary      Submit events
// @Description  Validates and routes up to 10 envelopes. Each entry gets its own result; a rejected entry does not fail the batch. Once draining starts, the remaining entries fail with DRAINING; the whole batch gets 503 only when nothing was routed.
// @Tags         events
// @Accept       json
// @Produce      json
// @Param        events  body      PutEventsRequest  true  "Envelopes to route"
// @Success      200     {object}  PutEventsResponse
// @Failure      400     {object}  errors.ErrorResponse
// @Failure      503     {object}  errors.ErrorResponse
// @Router       /events [post]
func (h *Handler) PutEvents(c *gin.Context) {
	var req PutEventsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if len(req.Entries) == 0 || len(req.Entries) > MaxPutEventsEntries {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
			errors.ErrValidation.WithMessage("entries must contain between 1 and 10 events")))
		return
	}

	ctx := c.Request.Context()
	now := h.now()
	resp := PutEventsResponse{Entries: make([]PutEventsResultEntry, 0, len(req.Entries))}
	for i, entry := range req.Entries {
		env := models.Normalize(entry, constants.IngressHTTP, now)
		receipt, err := h.deps.Dispatcher.Submit(ctx, env)
		if err != nil {
			if errors.IsDraining(err) {
				if i == 0 {
					h.HandleError(c, err)
					return
				}
				// Earlier entries are already routed; report the rest as
				// failed so a client retries only those.
				for j := i; j < len(req.Entries); j++ {
					if j > i {
						env = models.Normalize(req.Entries[j], constants.IngressHTTP, now)
					}
					resp.FailedEntryCount++
					resp.Entries = append(resp.Entries, PutEventsResultEntry{
						EventID:      env.ID,
						ErrorCode:    errors.ErrDraining.Code,
						ErrorMessage: err.Error(),
					})
				}
				break
			}
			resp.FailedEntryCount++
			code := errors.Code(err)
			if code == "" {
				code = errors.ErrInternal.Code
			}
			resp.Entries = append(resp.Entries, PutEventsResultEntry{
				EventID:      env.ID,
				ErrorCode:    code,
				ErrorMessage: err.Error(),
			})
			continue
		}
		resp.Entries = append(resp.Entries, PutEventsResultEntry{
			EventID:      receipt.EventID,
			MatchedRules: receipt.MatchedRules,
			Duplicate:    receipt.Duplicate,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// GetStats godoc
// @Summary      Dispatcher statistics
// @Tags         events
// @Produce      json
// @Success      200  {object}  dispatch.Stats
// @Router       /stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Dispatcher.Stats())
}

// ListRules godoc
// @Summary      List rules
// @Description  Returns every rule in evaluation order, including rules from configuration and schedules.
// @Tags         rules
// @Produce      json
// @Success      200  {array}   RuleResponse
// @Router       /rules [get]
func (h *Handler) ListRules(c *gin.Context) {
	list := h.deps.Rules.List()
	out := make([]RuleResponse, 0, len(list))
	for _, r := range list {
		out = append(out, toRuleResponse(r))
	}
	c.JSON(http.StatusOK, out)
}

// CreateRule godoc
// @Summary      Create a rule
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        rule  body      RuleRequest  true  "Rule"
// @Success      201   {object}  RuleResponse
// @Failure      400   {object}  errors.ErrorResponse
// @Failure      409   {object}  errors.ErrorResponse
// @Router       /rules [post]
func (h *Handler) CreateRule(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	rule, err := ruleFromRequest(req.ID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	created, err := h.deps.Rules.Create(c.Request.Context(), rule)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toRuleResponse(created))
}

// GetRule godoc
// @Summary      Get a rule
// @Tags         rules
// @Produce      json
// @Param        id   path      string  true  "Rule ID"
// @Success      200  {object}  RuleResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /rules/{id} [get]
func (h *Handler) GetRule(c *gin.Context) {
	rule, err := h.deps.Rules.Get(c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRuleResponse(rule))
}

// UpdateRule godoc
// @Summary      Replace a rule
// @Description  Replaces the pattern, condition and targets of a rule created through the API.
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        id    path      string       true  "Rule ID"
// @Param        rule  body      RuleRequest  true  "Rule"
// @Success      200   {object}  RuleResponse
// @Failure      400   {object}  errors.ErrorResponse
// @Failure      404   {object}  errors.ErrorResponse
// @Failure      409   {object}  errors.ErrorResponse
// @Router       /rules/{id} [put]
func (h *Handler) UpdateRule(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	rule, err := ruleFromRequest(c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	updated, err := h.deps.Rules.Update(c.Request.Context(), rule)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRuleResponse(updated))
}

// DeleteRule godoc
// @Summary      Delete a rule
// @Tags         rules
// @Param        id   path  string  true  "Rule ID"
// @Success      204  "No Content"
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      409  {object}  errors.ErrorResponse
// @Router       /rules/{id} [delete]
func (h *Handler) DeleteRule(c *gin.Context) {
	if err := h.deps.Rules.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// TestPattern godoc
// @Summary      Test a pattern
// @Description  Compiles a pattern and reports whether it matches the given event. Nothing is registered.
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        request  body      TestPatternRequest  true  "Pattern and event"
// @Success      200      {object}  TestPatternResponse
// @Failure      400      {object}  errors.ErrorResponse
// @Router       /rules/test-pattern [post]
func (h *Handler) TestPattern(c *gin.Context) {
	var req TestPatternRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	matched, err := rules.TestPattern(req.Pattern, req.Event)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, TestPatternResponse{Matched: matched})
}

// ListSchedules godoc
// @Summary      List schedules
// @Tags         schedules
// @Produce      json
// @Success      200  {array}  scheduler.Info
// @Router       /schedules [get]
func (h *Handler) ListSchedules(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Schedules.List())
}

// CreateSchedule godoc
// @Summary      Create a schedule
// @Description  Cadence is "rate(5 minutes)", a duration such as "90s", or "cron(0/5 * * * ? *)".
// @Tags         schedules
// @Accept       json
// @Produce      json
// @Param        schedule  body      ScheduleRequest  true  "Schedule"
// @Success      201       {object}  scheduler.Info
// @Failure      400       {object}  errors.ErrorResponse
// @Failure      409       {object}  errors.ErrorResponse
// @Router       /schedules [post]
func (h *Handler) CreateSchedule(c *gin.Context) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	sch, err := scheduleFromRequest(req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if err := h.deps.Schedules.Add(sch); err != nil {
		h.HandleError(c, err)
		return
	}

	info, _ := h.deps.Schedules.Get(sch.ID)
	c.JSON(http.StatusCreated, info)
}

// GetSchedule godoc
// @Summary      Get a schedule
// @Tags         schedules
// @Produce      json
// @Param        id   path      string  true  "Schedule ID"
// @Success      200  {object}  scheduler.Info
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /schedules/{id} [get]
func (h *Handler) GetSchedule(c *gin.Context) {
	id := c.Param("id")
	info, ok := h.deps.Schedules.Get(id)
	if !ok {
		h.HandleError(c, errors.ErrNotFound.WithDetail("schedule_id", id))
		return
	}
	c.JSON(http.StatusOK, info)
}

// DeleteSchedule godoc
// @Summary      Delete a schedule
// @Description  Stops future ticks. Envelopes already submitted keep being delivered.
// @Tags         schedules
// @Param        id   path  string  true  "Schedule ID"
// @Success      204  "No Content"
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /schedules/{id} [delete]
func (h *Handler) DeleteSchedule(c *gin.Context) {
	id := c.Param("id")
	if !h.deps.Schedules.Remove(id) {
		h.HandleError(c, errors.ErrNotFound.WithDetail("schedule_id", id))
		return
	}
	c.Status(http.StatusNoContent)
}

// PauseSchedule godoc
// @Summary      Pause a schedule
// @Tags         schedules
// @Param        id   path      string  true  "Schedule ID"
// @Success      200  {object}  scheduler.Info
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /schedules/{id}/pause [post]
func (h *Handler) PauseSchedule(c *gin.Context) {
	h.setSchedulePaused(c, true)
}

// ResumeSchedule godoc
// @Summary      Resume a schedule
// @Tags         schedules
// @Param        id   path      string  true  "Schedule ID"
// @Success      200  {object}  scheduler.Info
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /schedules/{id}/resume [post]
func (h *Handler) ResumeSchedule(c *gin.Context) {
	h.setSchedulePaused(c, false)
}

func (h *Handler) setSchedulePaused(c *gin.Context, paused bool) {
	id := c.Param("id")
	var err error
	if paused {
		err = h.deps.Schedules.PauseSchedule(id)
	} else {
		err = h.deps.Schedules.ResumeSchedule(id)
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	info, _ := h.deps.Schedules.Get(id)
	c.JSON(http.StatusOK, info)
}

// SetSchedulerPaused godoc
// @Summary      Pause or resume every schedule
// @Tags         schedules
// @Accept       json
// @Produce      json
// @Param        request  body      PauseRequest  true  "Paused flag"
// @Success      200      {object}  PauseRequest
// @Router       /schedules/paused [put]
func (h *Handler) SetSchedulerPaused(c *gin.Context) {
	var req PauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if req.Paused {
		h.deps.Schedules.Pause()
	} else {
		h.deps.Schedules.Resume()
	}
	c.JSON(http.StatusOK, PauseRequest{Paused: h.deps.Schedules.Paused()})
}

// ListTargets godoc
// @Summary      List targets
// @Tags         targets
// @Produce      json
// @Success      200  {array}  targets.Descriptor
// @Router       /targets [get]
func (h *Handler) ListTargets(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Targets.List())
}

// ListDeadLetters godoc
// @Summary      List dead letters
// @Description  Newest first. Only available when the configured sink can be listed.
// @Tags         dead-letters
// @Produce      json
// @Param        limit   query     int  false  "Maximum number of records (1-1000)" default(100)
// @Param        offset  query     int  false  "Records to skip" default(0)
// @Success      200     {array}   models.DeliveryAttempt
// @Failure      501     {object}  errors.ErrorResponse
// @Router       /dead-letters [get]
func (h *Handler) ListDeadLetters(c *gin.Context) {
	if h.deps.DeadLetters == nil {
		c.JSON(http.StatusNotImplemented, errors.ToErrorResponse(
			errors.ErrNotImplemented.WithMessage("the configured dead-letter sink cannot be listed")))
		return
	}

	limit := parseLimit(c.Query("limit"))
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	records, err := h.deps.DeadLetters.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func parseLimit(limitStr string) int {
	if limitStr == "" {
		return constants.DefaultLimit
	}
	parsed, err := strconv.Atoi(limitStr)
	if err != nil || parsed <= 0 || parsed > constants.MaxLimit {
		return constants.DefaultLimit
	}
	return parsed
}
