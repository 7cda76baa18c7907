package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/2k1998/BWC-Portal-Backend/internal/auth"
	"github.com/2k1998/BWC-Portal-Backend/internal/config"
	"github.com/2k1998/BWC-Portal-Backend/internal/db"
	"github.com/2k1998/BWC-Portal-Backend/internal/httpapi"
	"github.com/2k1998/BWC-Portal-Backend/internal/metrics"
	"github.com/2k1998/BWC-Portal-Backend/internal/notify"
	"github.com/2k1998/BWC-Portal-Backend/internal/presence"
	"github.com/2k1998/BWC-Portal-Backend/internal/ratelimit"
	"github.com/2k1998/BWC-Portal-Backend/internal/registry"
	"github.com/2k1998/BWC-Portal-Backend/internal/workflow"
)

func main() {
	logger := log.New(os.Stdout, "collab-gateway ", log.Ldate|log.Ltime|log.Lmicroseconds|log.LUTC)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	gdb, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}

	presenceStore, err := presence.NewGormStore(gdb)
	if err != nil {
		logger.Fatalf("initialize presence store: %v", err)
	}
	notifyStore, err := notify.NewGormStore(gdb)
	if err != nil {
		logger.Fatalf("initialize notification store: %v", err)
	}
	workflowStore, err := workflow.NewGormStore(gdb)
	if err != nil {
		logger.Fatalf("initialize workflow store: %v", err)
	}

	mx := metrics.New()
	reg := registry.New(logger, mx)
	tracker := presence.NewTracker(logger, presenceStore, reg, cfg.PresenceGrace)
	reg.SetLiveness(tracker)

	// Any presence rows left online by a previous run are stale now.
	if err := tracker.Reconcile(context.Background()); err != nil {
		logger.Fatalf("reconcile presence: %v", err)
	}

	dispatcher := notify.NewDispatcher(logger, notifyStore, reg, mx)
	engine := workflow.NewEngine(logger, workflowStore, dispatcher, mx,
		workflow.WithAcceptHook(func(_ context.Context, req workflow.Request) error {
			logger.Printf("request %s accepted: subject=%s counterpart=%s", req.ID, req.SubjectID, req.CounterpartID)
			return nil
		}),
	)

	verifier := auth.NewHMACVerifier(cfg.AuthSecret)
	limiter := ratelimit.NewPerUser(cfg.WSRateRPS, cfg.WSRateBurst)
	srv := httpapi.NewServer(logger, cfg.HTTPAddr, verifier, reg, tracker, engine, dispatcher, mx, limiter)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go tracker.Run(sweepCtx, cfg.SweepInterval)

	go func() {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server crashed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	stopSweep()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("server shutdown error: %v", err)
	}
	if err := tracker.Reconcile(context.Background()); err != nil {
		logger.Printf("presence shutdown reconcile error: %v", err)
	}
}
