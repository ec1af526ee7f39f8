package reporting

import (
	"time"

	"inspection-platform/internal/workflow"
)

// QueueCountsRequest asks for the tab counts of one actor.
type QueueCountsRequest struct {
	Actor workflow.Actor `json:"actor"`
}

// QueueCounts backs the dashboard tabs of one actor.
//
// AssignedToMe counts open cases the actor holds. Actionable counts open,
// unheld cases the actor could act on right now (claim, review, close).
// ByStatus splits both sets by status.
type QueueCounts struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`

	AssignedToMe int `json:"assigned_to_me"`
	Actionable   int `json:"actionable"`

	ByStatus map[workflow.Status]int `json:"by_status"`

	ComputedAt time.Time `json:"computed_at"`
	Cached     bool      `json:"cached"`
}
