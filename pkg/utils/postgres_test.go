package utils

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestPostgresPoolConfig_Defaults(t *testing.T) {
	got := PostgresPoolConfig{}.withDefaults()
	if got.MaxOpenConns != 20 || got.MaxIdleConns != 10 || got.ConnMaxLifetime != 15*time.Minute {
		t.Fatalf("unexpected pool sizes: %+v", got)
	}
	if got.PingTimeout != 5*time.Second {
		t.Fatalf("expected 5s ping timeout, got %s", got.PingTimeout)
	}

	custom := PostgresPoolConfig{MaxOpenConns: 4, MaxIdleConns: 9, PingTimeout: time.Second}.withDefaults()
	if custom.MaxOpenConns != 4 || custom.PingTimeout != time.Second {
		t.Fatalf("expected explicit values preserved, got %+v", custom)
	}
	if custom.MaxIdleConns != 4 {
		t.Fatalf("expected idle conns capped at open conns, got %d", custom.MaxIdleConns)
	}
}

func TestRedisConfig_Defaults(t *testing.T) {
	got := RedisConfig{MinIdleConns: -1}.withDefaults()
	if got.MinIdleConns != 0 || got.PoolSize != 20 {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}

func TestIsTxConflict(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&pgconn.PgError{Code: "40001"}, true},
		{fmt.Errorf("commit tx: %w", &pgconn.PgError{Code: "40P01"}), true},
		{&pgconn.PgError{Code: "55P03"}, true},
		{&pgconn.PgError{Code: "23505"}, false},
		{errors.New("connection refused"), false},
		{nil, false},
	}
	for i, tc := range cases {
		if got := IsTxConflict(tc.err); got != tc.want {
			t.Fatalf("case %d (%v): expected %v, got %v", i, tc.err, tc.want, got)
		}
	}
}
