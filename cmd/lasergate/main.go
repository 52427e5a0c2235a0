package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/BrandonDHaskell/lasergate/internal/clock"
	"github.com/BrandonDHaskell/lasergate/internal/config"
	"github.com/BrandonDHaskell/lasergate/internal/db"
	"github.com/BrandonDHaskell/lasergate/internal/httpapi"
	"github.com/BrandonDHaskell/lasergate/internal/hw/keyboard"
	"github.com/BrandonDHaskell/lasergate/internal/hw/sim"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/capture"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/controller"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/service"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/store/sqlite"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
	"github.com/BrandonDHaskell/lasergate/internal/logging"
	"github.com/BrandonDHaskell/lasergate/internal/rpcapi"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "lasergate:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.StringP("config", "c", os.Getenv("LASERGATE_CONFIG"), "path to YAML config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level: cfg.Log.Level,
		JSON:  cfg.Log.JSON,
		File:  cfg.Log.File,
	})
	if err != nil {
		return err
	}
	defer closeLog()
	logger = logger.With("app", "lasergate")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	conn, err := db.Open(ctx, db.Config{Path: cfg.DB.Path, Env: cfg.Env})
	if err != nil {
		return err
	}
	defer conn.Close()
	writer := db.NewWorker(conn)
	defer writer.Close()

	if cfg.Env == "dev" && len(cfg.DevAdminCards) > 0 {
		n, err := db.SeedDev(ctx, conn, db.SeedDevOptions{AdminCards: cfg.DevAdminCards})
		if err != nil {
			return err
		}
		logger.Info("dev admin cards seeded", "count", n)
	}

	dir := sqlite.NewDirectory(conn, writer)
	clk := clock.Real()

	// Services
	access := service.NewAccessService(dir, clk, logger)
	users := service.NewUserService(dir, clk, cfg.Validity(), logger)
	purger := service.NewExpiryPurger(dir, clk, service.PurgerConfig{
		IntervalHours: cfg.Policy.PurgeIntervalHours,
		IncludeAdmins: cfg.Policy.PurgeIncludeAdmins,
	}, logger)
	purger.Start(ctx)
	defer purger.Stop()

	// Hardware
	board := sim.NewBoard(cfg.Hardware.DisplayWidth, logger.With("component", "sim"))
	keys := make(chan types.KeyEvent, 64)
	go capture.Pump(ctx, board.Keys, keys)

	if cfg.Hardware.Keyboard == "terminal" {
		kb, err := keyboard.Open(os.Stdin, logger)
		if err != nil {
			return err
		}
		defer kb.Close()
		kb.OnInterrupt = stop
		go func() {
			if err := kb.Run(ctx, board.Keys); err != nil {
				logger.Warn("keyboard stopped", "err", err)
			}
		}()
	}

	fields := capture.DefaultFields(0)
	if cfg.Enrollment.CollectSecondaryID {
		fields = capture.DefaultFields(cfg.Enrollment.SecondaryIDDigits)
	}

	ctl, err := controller.New(controller.Dependencies{
		Logger:    logger.With("component", "controller"),
		Clock:     clk,
		Reader:    board.Reader,
		Display:   board.Display,
		Indicator: board.LED,
		Power:     board.Relay,
		Done:      board.Done,
		Keys:      keys,
		Access:    access,
		Users:     users,
		Timing:    timingFrom(cfg),
		Fields:    fields,
	})
	if err != nil {
		return err
	}

	// Surfaces
	var httpSrv *httpapi.Server
	if cfg.HTTP.Addr != config.Off {
		httpSrv = httpapi.NewServer(httpapi.Dependencies{
			Logger:    logger.With("component", "http"),
			Addr:      cfg.HTTP.Addr,
			Status:    ctl,
			Users:     dir,
			Clock:     clk,
			Sim:       board,
			RateLimit: cfg.HTTP.RateLimit,
			Burst:     cfg.HTTP.Burst,
		})
		go func() {
			logger.Info("http listening", "addr", cfg.HTTP.Addr)
			if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "err", err)
				stop()
			}
		}()
	}

	var rpcSrv *rpcapi.Server
	if cfg.GRPC.Addr != config.Off {
		rpcSrv = rpcapi.NewServer(rpcapi.Dependencies{
			Logger: logger.With("component", "grpc"),
			Addr:   cfg.GRPC.Addr,
			Status: ctl,
		})
		go func() {
			logger.Info("grpc listening", "addr", cfg.GRPC.Addr)
			if err := rpcSrv.Start(); err != nil {
				logger.Error("grpc server error", "err", err)
				stop()
			}
		}()
	}

	runErr := ctl.Run(ctx)

	// Power down first; everything else is bookkeeping.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ctl.Shutdown(shutdownCtx); err != nil {
		logger.Error("controller shutdown", "err", err)
	}
	if httpSrv != nil {
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	if rpcSrv != nil {
		rpcSrv.Shutdown()
	}
	return runErr
}

func timingFrom(cfg config.Config) controller.Timing {
	t := controller.DefaultTiming()
	t.IdlePoll = cfg.Timing.IdlePoll
	t.OnPoll = cfg.Timing.OnPoll
	t.EnrollPoll = cfg.Timing.EnrollPoll
	t.GracePeriod = cfg.Timing.GracePeriod
	t.AddUserTimeout = cfg.Timing.AddUserTimeout
	t.ConfirmWindow = cfg.Timing.ConfirmWindow
	t.CaptureTimeout = cfg.Timing.CaptureTimeout
	t.Validity = cfg.Validity()
	return t
}
