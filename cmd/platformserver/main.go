package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/playhub/internal/auth"
	"github.com/udisondev/playhub/internal/config"
	"github.com/udisondev/playhub/internal/games"
	"github.com/udisondev/playhub/internal/lobby"
	"github.com/udisondev/playhub/internal/metrics"
	"github.com/udisondev/playhub/internal/platform"
	"github.com/udisondev/playhub/internal/runtime"
	"github.com/udisondev/playhub/internal/store"
	"github.com/udisondev/playhub/internal/store/jsonstore"
	"github.com/udisondev/playhub/internal/store/pgstore"
)

const ConfigPath = "config/platformserver.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("PLAYHUB_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadPlatform(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))
	slog.Info("playhub platform server starting",
		"bind", cfg.BindAddress, "port", cfg.Port, "db_backend", cfg.Database.Backend)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("closing store", "err", err)
		}
	}()

	gameMgr, err := games.NewManager(st, cfg.StorageDir, cfg.BaseGamePort)
	if err != nil {
		return fmt.Errorf("creating game manager: %w", err)
	}

	rt := runtime.New(runtime.Config{
		Interpreter:  cfg.Runtime.Interpreter,
		ScriptSuffix: cfg.Runtime.ScriptSuffix,
		ReadyWindow:  cfg.Runtime.ReadyWindowDuration(),
		StopGrace:    cfg.Runtime.StopGraceDuration(),
	})
	defer rt.Shutdown()

	authMgr := auth.NewManager(st)
	lobbyMgr := lobby.NewManager(st, rt, gameMgr)
	m := metrics.New()

	server := platform.NewServer(cfg, st, authMgr, gameMgr, lobbyMgr, m)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Run(gctx); err != nil {
			return fmt.Errorf("platform server: %w", err)
		}
		return nil
	})

	if cfg.MetricsAddress != "" {
		g.Go(func() error {
			if err := m.Serve(gctx, cfg.MetricsAddress); err != nil {
				return fmt.Errorf("metrics listener: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// openStore picks the catalog backend from configuration.
func openStore(ctx context.Context, cfg config.Platform) (store.Store, error) {
	switch cfg.Database.Backend {
	case "", "json":
		st, err := jsonstore.Open(cfg.DBDir)
		if err != nil {
			return nil, fmt.Errorf("opening json store: %w", err)
		}
		return st, nil
	case "postgres":
		st, err := pgstore.Open(ctx, cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown database backend %q", cfg.Database.Backend)
	}
}
