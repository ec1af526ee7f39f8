package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"inspection-platform/internal/auth"
	"inspection-platform/internal/cases"
	"inspection-platform/internal/law"
	"inspection-platform/internal/rbac"
	"inspection-platform/internal/reporting"
	"inspection-platform/internal/workflow"
	"inspection-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth    *auth.Manager
	Cases   *cases.Service
	Reports *reporting.Service

	// DevLogin enables token issuance without credentials.
	DevLogin bool
}

// --- Auth ---

type loginRequest struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	District string `json:"district,omitempty"`
	Section  string `json:"section,omitempty"`
}

// Login issues a JWT token pair for the claimed identity.
//
// Only enabled for local and dev; real deployments take tokens from the
// identity provider.
func (h Handlers) Login(c *gin.Context) {
	if !h.DevLogin || h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": string(workflow.KindNotFound), "message": "login is disabled"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if req.UserID == "" || !rbac.IsKnownRole(req.Role) {
		badRequest(c, "user_id and a known role are required")
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), auth.Identity{
		UserID:   req.UserID,
		Role:     req.Role,
		District: req.District,
		Section:  req.Section,
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal", "message": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

func actorFrom(c *gin.Context) (workflow.Actor, bool) {
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return workflow.Actor{}, false
	}
	return workflow.Actor{ID: id.UserID, Role: id.Role, District: id.District, Section: id.Section}, true
}

// --- Cases ---

func (h Handlers) CreateCase(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req cases.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	out, err := h.Cases.Create(c.Request.Context(), actor, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h Handlers) GetCase(c *gin.Context) {
	out, err := h.Cases.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ListCases supports ?status=A,B&law=PD-1586&assigned=me|none&limit=&offset=.
func (h Handlers) ListCases(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var f cases.Filter
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st := workflow.Status(strings.ToUpper(strings.TrimSpace(s)))
			if !st.Valid() {
				badRequest(c, "unknown status "+s)
				return
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	if raw := c.Query("law"); raw != "" {
		code, err := law.ParseCode(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		f.Law = code
	}
	switch c.Query("assigned") {
	case "":
	case "me":
		f.AssignedTo = actor.ID
	case "none":
		f.Unassigned = true
	default:
		badRequest(c, "assigned must be me or none")
		return
	}
	var err error
	if f.Limit, err = intQuery(c, "limit", 50); err != nil || f.Limit <= 0 || f.Limit > 500 {
		badRequest(c, "limit must be between 1 and 500")
		return
	}
	if f.Offset, err = intQuery(c, "offset", 0); err != nil || f.Offset < 0 {
		badRequest(c, "offset must not be negative")
		return
	}

	out, err := h.Cases.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	if out == nil {
		out = []cases.Case{}
	}
	c.JSON(http.StatusOK, gin.H{"items": out, "limit": f.Limit, "offset": f.Offset})
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (h Handlers) History(c *gin.Context) {
	recs, err := h.Cases.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": recs})
}

func (h Handlers) Verify(c *gin.Context) {
	rep, err := h.Cases.Verify(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h Handlers) AvailableActions(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	acts, err := h.Cases.Available(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		writeError(c, err)
		return
	}
	if acts == nil {
		acts = []workflow.Action{}
	}
	c.JSON(http.StatusOK, gin.H{"actions": acts})
}

// --- Transitions ---

type remarksRequest struct {
	Remarks string `json:"remarks"`
}

type forwardRequest struct {
	Target  string `json:"target"`
	Remarks string `json:"remarks"`
}

// bindOptional accepts an empty body as the zero value.
func bindOptional(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		badRequest(c, "invalid json")
		return false
	}
	return true
}

type remarksOp func(h Handlers, c *gin.Context, id string, actor workflow.Actor, remarks string) (cases.Case, error)

func (h Handlers) remarksHandler(op remarksOp) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			return
		}
		var req remarksRequest
		if !bindOptional(c, &req) {
			return
		}
		out, err := op(h, c, c.Param("id"), actor, req.Remarks)
		h.respondTransition(c, actor, out, err)
	}
}

func (h Handlers) respondTransition(c *gin.Context, actor workflow.Actor, out cases.Case, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	if h.Reports != nil {
		if err := h.Reports.Invalidate(c.Request.Context(), actor); err != nil {
			logger.FromGin(c).Warn("queue count invalidation failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) Assign() gin.HandlerFunc {
	return h.remarksHandler(func(h Handlers, c *gin.Context, id string, a workflow.Actor, r string) (cases.Case, error) {
		return h.Cases.Assign(c.Request.Context(), id, a, r)
	})
}

func (h Handlers) Start() gin.HandlerFunc {
	return h.remarksHandler(func(h Handlers, c *gin.Context, id string, a workflow.Actor, r string) (cases.Case, error) {
		return h.Cases.Start(c.Request.Context(), id, a, r)
	})
}

func (h Handlers) Review() gin.HandlerFunc {
	return h.remarksHandler(func(h Handlers, c *gin.Context, id string, a workflow.Actor, r string) (cases.Case, error) {
		return h.Cases.Review(c.Request.Context(), id, a, r)
	})
}

func (h Handlers) ForwardToLegal() gin.HandlerFunc {
	return h.remarksHandler(func(h Handlers, c *gin.Context, id string, a workflow.Actor, r string) (cases.Case, error) {
		return h.Cases.ForwardToLegal(c.Request.Context(), id, a, r)
	})
}

func (h Handlers) Close() gin.HandlerFunc {
	return h.remarksHandler(func(h Handlers, c *gin.Context, id string, a workflow.Actor, r string) (cases.Case, error) {
		return h.Cases.Close(c.Request.Context(), id, a, r)
	})
}

func (h Handlers) Complete(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req cases.CompleteRequest
	if !bindOptional(c, &req) {
		return
	}
	out, err := h.Cases.Complete(c.Request.Context(), c.Param("id"), actor, req)
	h.respondTransition(c, actor, out, err)
}

func (h Handlers) Forward(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req forwardRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Target) == "" {
		badRequest(c, "target stage required")
		return
	}
	out, err := h.Cases.Forward(c.Request.Context(), c.Param("id"), actor, req.Target, req.Remarks)
	h.respondTransition(c, actor, out, err)
}

func (h Handlers) SendNOV(c *gin.Context) { h.sendNotice(c, workflow.NoticeNOV) }

func (h Handlers) SendNOO(c *gin.Context) { h.sendNotice(c, workflow.NoticeNOO) }

func (h Handlers) sendNotice(c *gin.Context, kind workflow.NoticeKind) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req cases.NoticeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	var (
		out cases.Case
		err error
	)
	if kind == workflow.NoticeNOV {
		out, err = h.Cases.SendNOV(c.Request.Context(), c.Param("id"), actor, req)
	} else {
		out, err = h.Cases.SendNOO(c.Request.Context(), c.Param("id"), actor, req)
	}
	h.respondTransition(c, actor, out, err)
}

// --- Checklist ---

type checklistRequest struct {
	Data            json.RawMessage `json:"data"`
	ExpectedVersion int64           `json:"expected_version"`
}

func (h Handlers) PutChecklist(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req checklistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	b, err := h.Cases.SaveChecklist(c.Request.Context(), c.Param("id"), actor, req.Data, req.ExpectedVersion)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h Handlers) GetChecklist(c *gin.Context) {
	b, err := h.Cases.GetChecklist(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// --- Queues ---

func (h Handlers) QueueCounts(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": string(workflow.KindDependencyUnavailable), "message": "reporting not configured"})
		return
	}
	out, err := h.Reports.QueueCounts(c.Request.Context(), reporting.QueueCountsRequest{Actor: actor})
	if err != nil {
		writeError(c, workflow.Wrap(workflow.KindDependencyUnavailable, "", err))
		return
	}
	c.JSON(http.StatusOK, out)
}
