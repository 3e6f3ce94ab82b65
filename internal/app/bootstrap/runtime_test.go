package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	appconfig "github.com/wolfman30/physio-portal/internal/config"
	"github.com/wolfman30/physio-portal/internal/session"
	"github.com/wolfman30/physio-portal/pkg/logging"
)

func TestBuildRedisClientDisabledWithoutAddr(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client without REDIS_ADDR")
	}
	if client := BuildRedisClient(context.Background(), nil, nil, false); client != nil {
		t.Fatalf("expected nil client for nil config")
	}
}

func TestBuildRedisClientVerifies(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr()}

	client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true)
	if client == nil {
		t.Fatalf("expected client for reachable redis")
	}
	t.Cleanup(func() { _ = client.Close() })

	mr.Close()
	if client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestBuildSessionStore(t *testing.T) {
	cfg := &appconfig.Config{SessionTTL: time.Minute}

	if _, ok := BuildSessionStore(nil, cfg, logging.New("error")).(*session.MemoryStore); !ok {
		t.Fatalf("expected memory store without redis")
	}

	mr := miniredis.RunT(t)
	cfg.RedisAddr = mr.Addr()
	client := BuildRedisClient(context.Background(), cfg, nil, false)
	t.Cleanup(func() { _ = client.Close() })

	store := BuildSessionStore(client, cfg, logging.New("error"))
	if _, ok := store.(*session.RedisStore); !ok {
		t.Fatalf("expected redis store, got %T", store)
	}
	if err := store.Save(context.Background(), &session.Session{ID: "s1", Token: "t", SubjectID: "123", UserType: session.UserPatient}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ttl := mr.TTL("portal:session:s1"); ttl != time.Minute {
		t.Fatalf("expected session ttl of a minute, got %s", ttl)
	}
}

func TestBuildAuditService(t *testing.T) {
	if _, _, err := BuildAuditService(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}

	svc, cleanup, err := BuildAuditService(context.Background(), &appconfig.Config{}, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()
	if err := svc.LogLogin(context.Background(), "123", session.UserPatient); err != nil {
		t.Fatalf("disabled audit log should drop events, got %v", err)
	}
}
