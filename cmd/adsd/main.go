// Package main is the ads gateway daemon: one process per workspace,
// wiring the store, session manager, task scheduler, and WebSocket gateway
// together (spec.md §5, §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Andy963/ads-sub001/internal/adapter"
	"github.com/Andy963/ads-sub001/internal/command"
	"github.com/Andy963/ads-sub001/internal/common/config"
	"github.com/Andy963/ads-sub001/internal/common/logger"
	"github.com/Andy963/ads-sub001/internal/db"
	"github.com/Andy963/ads-sub001/internal/db/dialect"
	"github.com/Andy963/ads-sub001/internal/gateway"
	"github.com/Andy963/ads-sub001/internal/orchestrator"
	"github.com/Andy963/ads-sub001/internal/queue"
	"github.com/Andy963/ads-sub001/internal/session"
	"github.com/Andy963/ads-sub001/internal/store"
	"github.com/Andy963/ads-sub001/internal/tools"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting ads")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := openPool(cfg.Database)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer pool.Close()

	storeDriver := dialect.SQLite3
	if cfg.Database.Driver == "postgres" || cfg.Database.Driver == "postgresql" {
		storeDriver = dialect.PGX
	}
	if err := store.Migrate(ctx, pool.Writer(), storeDriver); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}
	st := store.New(pool, storeDriver)
	log.Info("database ready", zap.String("driver", cfg.Database.Driver))

	toolsPolicy := tools.NewPolicy(cfg.Tools, cfg.Workspace)
	factory := agentFactory(log)

	sessMgr := session.NewManager(factory, st, log)

	// The task scheduler drives the single active task per workspace
	// through its own dedicated orchestrator, independent of any connected
	// WebSocket session (spec.md §4.7).
	queueOrch := orchestrator.New(factory()...)
	scheduler := queue.New(st, queueOrch, log, queue.Config{InheritContext: true})
	scheduler.Start()
	go scheduler.Run(ctx)
	defer scheduler.Stop()

	var gw *gateway.Gateway
	router := command.NewRouter(command.Dependencies{
		NewTask: func(ctx context.Context, workspace, title, prompt string) (string, error) {
			task, err := st.CreateTask(ctx, store.CreateTaskInput{
				Title:     title,
				Prompt:    prompt,
				CreatedBy: "command-router",
			}, time.Now())
			if err != nil {
				return "", err
			}
			scheduler.NotifyTaskCreated()
			return task.ID, nil
		},
		SetReviewLocked: func(locked bool) {
			if gw != nil {
				gw.SetReviewLocked(locked)
			}
		},
		ReviewLocked: func() bool {
			if gw != nil {
				return gw.ReviewLocked()
			}
			return false
		},
	})

	gw = gateway.New(gateway.Config{
		Token:       cfg.Server.Token,
		MaxClients:  cfg.Server.MaxClients,
		IdleMinutes: cfg.Server.IdleMinutes,
		Workspace:   cfg.Workspace.Root,
		TempDir:     cfg.Workspace.Root + "/.ads/temp/web-images",
	}, st, sessMgr, toolsPolicy, router, log)

	pidFile := gateway.NewPIDFile(cfg.Workspace.Root, log)
	if err := pidFile.Acquire(); err != nil {
		log.Fatal("failed to acquire pid file", zap.Error(err))
	}
	defer pidFile.Release()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("gateway listening", zap.String("addr", addr))
		serveErr <- gw.Serve(ctx, addr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("received shutdown signal")
		cancel()
		<-serveErr
	case err := <-serveErr:
		if err != nil {
			log.Error("gateway stopped with error", zap.Error(err))
		}
		cancel()
	}

	log.Info("ads stopped")
}

// openPool opens the configured database driver and wraps it in the
// shared-pool abstraction internal/store expects.
func openPool(dbCfg config.DatabaseConfig) (*db.Pool, error) {
	switch dbCfg.Driver {
	case "", "sqlite", "sqlite3":
		writer, err := db.OpenSQLite(dbCfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite writer: %w", err)
		}
		reader, err := db.OpenSQLiteReader(dbCfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite reader: %w", err)
		}
		return db.NewPool(sqlx.NewDb(writer, "sqlite3"), sqlx.NewDb(reader, "sqlite3")), nil
	case "postgres", "postgresql":
		conn, err := db.OpenPostgres(dbCfg.DSN(), dbCfg.MaxConns, dbCfg.MinConns)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		sqlxDB := sqlx.NewDb(conn, "postgres")
		return db.NewPool(sqlxDB, sqlxDB), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", dbCfg.Driver)
	}
}

// agentFactory builds the Codex/Claude/Gemini CLI-backed adapters every
// fresh session and the task scheduler register (spec.md §4.2); each is a
// thin process launcher sharing one wire protocol.
func agentFactory(log *logger.Logger) session.AdapterFactory {
	specs := []adapter.LaunchSpec{
		{ID: "codex", Name: "Codex", Command: "codex", Args: []string{"exec", "--json"}},
		{ID: "claude", Name: "Claude", Command: "claude", Args: []string{"--output-format", "stream-json"}},
		{ID: "gemini", Name: "Gemini", Command: "gemini", Args: []string{"--json"}},
	}
	return func() []adapter.Adapter {
		agents := make([]adapter.Adapter, 0, len(specs))
		for _, spec := range specs {
			agents = append(agents, adapter.NewProcessAdapter(spec, log))
		}
		return agents
	}
}
