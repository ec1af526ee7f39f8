package httpapi

import (
	"inspection-platform/internal/auth"
	"inspection-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Register mounts the versioned API on r. Role checks per case are done by
// the workflow; the route-level guard only rejects unknown roles, except for
// case origination.
func (h Handlers) Register(r gin.IRouter) {
	v1 := r.Group("/v1")

	v1.POST("/auth/login", h.Login)

	api := v1.Group("")
	api.Use(auth.RequireAccessToken(h.Auth), rbac.RequireKnownRole())

	cs := api.Group("/cases")
	{
		cs.POST("", rbac.RequireAnyRole(rbac.RoleDivisionChief), h.CreateCase)
		cs.GET("", h.ListCases)
		cs.GET("/:id", h.GetCase)
		cs.GET("/:id/history", h.History)
		cs.GET("/:id/verify", h.Verify)
		cs.GET("/:id/actions", h.AvailableActions)

		cs.POST("/:id/assign", h.Assign())
		cs.POST("/:id/start", h.Start())
		cs.POST("/:id/complete", h.Complete)
		cs.POST("/:id/forward", h.Forward)
		cs.POST("/:id/review", h.Review())
		cs.POST("/:id/forward-to-legal", h.ForwardToLegal())
		cs.POST("/:id/nov", rbac.RequireAnyRole(rbac.RoleLegalUnit), h.SendNOV)
		cs.POST("/:id/noo", rbac.RequireAnyRole(rbac.RoleLegalUnit), h.SendNOO)
		cs.POST("/:id/close", h.Close())

		cs.PUT("/:id/checklist", h.PutChecklist)
		cs.GET("/:id/checklist", h.GetChecklist)
	}

	api.GET("/queues/counts", h.QueueCounts)
}
