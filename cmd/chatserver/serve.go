package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/go-chatcore/chat"
	"github.com/cyberinferno/go-chatcore/config"
	"github.com/cyberinferno/go-chatcore/credstore"
	"github.com/cyberinferno/go-chatcore/logger"
	"github.com/cyberinferno/go-chatcore/metrics"
	"github.com/cyberinferno/go-chatcore/reactor"
	"github.com/cyberinferno/go-chatcore/session"
	"github.com/cyberinferno/go-chatcore/transport"
	"github.com/cyberinferno/go-chatcore/workerpool"
)

const shutdownTimeout = 5 * time.Second

func newLogger(cfg *config.Config) (logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	return logger.NewZerologLogger(zerolog.New(os.Stdout), cfg.Logging.ServiceName, level), nil
}

func serve(ctx context.Context, configDir, host, port string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return fmt.Errorf("invalid port %q", port)
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	eventLog, eventFile, err := logger.OpenAppendLog(cfg.Logging.EventLogPath, cfg.EventLogMaxBytes())
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer eventFile.Close()

	store, err := credstore.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, metrics.DefaultNamespace)

	registry := session.NewRegistry(
		session.WithWriteTimeout(cfg.Server.WriteTimeout),
		session.WithLogger(log.With(logger.Field{Key: "component", Value: "registry"})),
		session.WithMetrics(m),
	)
	svc := chat.NewService(store, registry,
		chat.WithLogger(log.With(logger.Field{Key: "component", Value: "chat"})),
		chat.WithWriteTimeout(cfg.Server.WriteTimeout),
		chat.WithBcryptCost(cfg.Store.BcryptCost),
	)

	pool, err := workerpool.New(cfg.Server.Workers,
		workerpool.WithLogger(log.With(logger.Field{Key: "component", Value: "pool"})),
		workerpool.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	defer pool.Shutdown()

	address := net.JoinHostPort(host, port)
	ln, err := transport.Listen(ctx, address, transport.WithMaxFrameSize(cfg.Server.MaxFrameSize))
	if err != nil {
		log.Error("listen failed", logger.Field{Key: "addr", Value: address}, logger.Field{Key: "error", Value: err.Error()})
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	r, err := reactor.New(ln, pool, svc,
		reactor.WithMaxEvents(cfg.Server.MaxEvents),
		reactor.WithReadBufferSize(cfg.Server.ReadBufferSize),
		reactor.WithMaxFrameSize(cfg.Server.MaxFrameSize),
		reactor.WithAcceptTimeout(cfg.Server.AcceptTimeout),
		reactor.WithLogger(log.With(logger.Field{Key: "component", Value: "reactor"})),
		reactor.WithEventLog(eventLog),
		reactor.WithMetrics(m),
	)
	if err != nil {
		_ = ln.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.Run(gctx)
	})

	if cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metrics.NewHandler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("metrics endpoint listening", logger.Field{Key: "addr", Value: cfg.Metrics.Addr})
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// Deferred calls then drain the pool before the store and logs close.
	err = g.Wait()
	log.Info("server exiting", logger.Field{Key: "pending_tasks", Value: pool.Pending()})
	return err
}
