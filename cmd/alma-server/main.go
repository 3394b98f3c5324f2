package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/alma-voice/alma/pkg/asr"
	"github.com/alma-voice/alma/pkg/asr/vosk"
	"github.com/alma-voice/alma/pkg/gateway/config"
	gatewayserver "github.com/alma-voice/alma/pkg/gateway/server"
)

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := os.MkdirAll(cfg.AudioDir, 0o755); err != nil {
		return fmt.Errorf("create audio dir: %w", err)
	}

	var engine asr.Engine
	if cfg.ModelPath != "" {
		voskEngine, err := vosk.Open(cfg.ModelPath)
		if err != nil {
			logger.Warn("recognizer model unavailable, transcription disabled", "model_path", cfg.ModelPath, "error", err)
		} else {
			engine = voskEngine
			defer voskEngine.Close()
			logger.Info("recognizer model loaded", "model_path", cfg.ModelPath)
		}
	} else {
		logger.Warn("no recognizer model configured, transcription disabled")
	}

	gw, err := gatewayserver.New(cfg, logger, engine)
	if err != nil {
		return fmt.Errorf("build gateway: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	if err := gw.Assistant().Ping(pingCtx); err != nil {
		logger.Warn("assistant service unreachable at startup", "base_url", cfg.LLMBaseURL, "error", err)
	} else {
		logger.Info("assistant service reachable", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModel)
	}
	pingCancel()

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	logger.Info("starting server", "addr", cfg.Addr, "wake_phrase", cfg.WakePhrase)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !gw.Sessions().Wait(waitCtx) {
		logger.Warn("live sessions still open after grace period, canceling", "canceled", gw.Sessions().CancelAll())
		gw.Sessions().Wait(nil)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("could not load .env", "error", err)
	}

	if err := run(context.Background(), logger); err != nil {
		fmt.Fprintf(os.Stderr, "alma-server: %v\n", err)
		os.Exit(1)
	}
}
