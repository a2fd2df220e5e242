package store

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/splax/taskboard/internal/repository/memory"
	"github.com/splax/taskboard/pkg/config"
)

func TestOpenMemory(t *testing.T) {
	cfg := config.DefaultAPIConfig()
	cfg.StoreDriver = config.StoreDriverMemory
	st, err := Open(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := st.(*memory.Repository); !ok {
		t.Fatalf("expected memory repository, got %T", st)
	}
	if err := st.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := config.DefaultAPIConfig()
	cfg.StoreDriver = "sqlite"
	if _, err := Open(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
