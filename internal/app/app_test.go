package app

import (
	"context"
	"io"
	"testing"

	"inspection-platform/internal/cases"
	"inspection-platform/internal/config"
	"inspection-platform/internal/rbac"
	"inspection-platform/internal/workflow"
	"inspection-platform/pkg/logger"
)

func memoryConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Config{
		App:  config.AppConfig{Env: "local", Port: 8080, StoreDriver: "memory"},
		Auth: config.AuthConfig{JWTSecret: "secret"},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestNew_WiresInMemoryCollaborators(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(t), logger.NewWithWriter("local", io.Discard))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	if a.DB != nil || a.Redis != nil {
		t.Fatalf("expected no external connections")
	}
	dc := workflow.Actor{ID: "dc-1", Role: rbac.RoleDivisionChief}
	c, err := a.Cases.Create(context.Background(), dc, cases.CreateRequest{Law: "RA-8749", Establishments: []string{"e"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !cases.ValidCode(c.Code) {
		t.Fatalf("unexpected code %q", c.Code)
	}
	if res, err := a.Billing.Redrive(context.Background()); err != nil || res.Delivered != 0 {
		t.Fatalf("expected empty redrive, got %+v %v", res, err)
	}
	if err := a.Migrate(context.Background()); err == nil {
		t.Fatalf("expected migrate to require postgres")
	}
}
