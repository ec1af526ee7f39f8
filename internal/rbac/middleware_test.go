package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"inspection-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

func serve(t *testing.T, id auth.Identity, guards ...gin.HandlerFunc) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	handlers := []gin.HandlerFunc{func(c *gin.Context) {
		if id.UserID != "" {
			c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		}
		c.Next()
	}}
	handlers = append(handlers, guards...)
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusOK) })

	r := gin.New()
	r.GET("/x", handlers...)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_AllowsListedRole(t *testing.T) {
	code := serve(t, auth.Identity{UserID: "dc", Role: RoleDivisionChief}, RequireKnownRole(), RequireAnyRole(RoleDivisionChief))
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_DeniesOtherRole(t *testing.T) {
	code := serve(t, auth.Identity{UserID: "mp", Role: RoleMonitoringPersonnel}, RequireAnyRole(RoleDivisionChief, RoleLegalUnit))
	if code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireKnownRole_RejectsUnknownRole(t *testing.T) {
	code := serve(t, auth.Identity{UserID: "x", Role: "super_admin"}, RequireKnownRole())
	if code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireKnownRole_RequiresIdentity(t *testing.T) {
	code := serve(t, auth.Identity{}, RequireKnownRole())
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestCanOriginateCases(t *testing.T) {
	if !CanOriginateCases(RoleDivisionChief) || CanOriginateCases(RoleSectionChief) {
		t.Fatalf("only the division chief originates cases")
	}
}
