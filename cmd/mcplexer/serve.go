package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/revittco/mcplexer/internal/api"
	"github.com/revittco/mcplexer/internal/config"
	"github.com/revittco/mcplexer/internal/inboundauth"
)

// cmdServe loads config, builds the multiplexer and its HTTP surface,
// and runs until SIGINT/SIGTERM.
func cmdServe(cfg *Config) error {
	ctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	var fileCfg *config.ProxyConfig
	if cfg.ConfigFile != "" {
		if _, err := os.Stat(cfg.ConfigFile); err == nil {
			fileCfg, err = config.LoadFile(cfg.ConfigFile)
			if err != nil {
				return err
			}
			logger.Info("loaded config", "file", cfg.ConfigFile)
		}
	}

	gate, err := buildInboundAuthGate(fileCfg, cfg)
	if err != nil {
		return err
	}

	mux, err := buildMultiplexer(ctx, fileCfg, logger)
	if err != nil {
		return err
	}
	defer mux.Close() //nolint:errcheck

	router := api.NewRouter(api.RouterDeps{
		Multiplexer: mux,
		InboundAuth: gate,
	})

	addr := cfg.Host + ":" + strconv.Itoa(cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// applyFlags parses spec §6's minimal CLI flag set. Both "--flag value"
// and "--flag=value" forms are accepted; --inbound-auth-token is
// repeatable and additive to the loaded config file's inboundAuth.tokens.
func applyFlags(cfg *Config, args []string) error {
	for i := 0; i < len(args); i++ {
		name, inlineVal, hasInline := splitFlag(args[i])
		next := func() (string, error) {
			if hasInline {
				return inlineVal, nil
			}
			i++
			if i >= len(args) {
				return "", fmt.Errorf("flag %s requires a value", name)
			}
			return args[i], nil
		}

		switch name {
		case "--config":
			v, err := next()
			if err != nil {
				return err
			}
			cfg.ConfigFile = v
		case "--host":
			v, err := next()
			if err != nil {
				return err
			}
			cfg.Host = v
		case "--port":
			v, err := next()
			if err != nil {
				return err
			}
			port, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("--port: %w", err)
			}
			cfg.Port = port
		case "--inbound-auth-token":
			v, err := next()
			if err != nil {
				return err
			}
			cfg.InboundAuthTokens = append(cfg.InboundAuthTokens, v)
		default:
			return fmt.Errorf("unknown flag: %s", name)
		}
	}
	return nil
}

func splitFlag(arg string) (name, value string, hasValue bool) {
	for i := 0; i < len(arg); i++ {
		if arg[i] == '=' {
			return arg[:i], arg[i+1:], true
		}
	}
	return arg, "", false
}

// buildInboundAuthGate merges the config file's inboundAuth section with
// any --inbound-auth-token flags (additive) and constructs the gate. A
// non-nil error here is fatal at startup (spec §6 exit code 3).
func buildInboundAuthGate(fileCfg *config.ProxyConfig, cfg *Config) (*inboundauth.Gate, error) {
	authCfg := inboundauth.Config{Type: inboundauth.TypeNone}
	if fileCfg != nil {
		authCfg = fileCfg.InboundAuthConfig()
	}
	if len(cfg.InboundAuthTokens) > 0 {
		if authCfg.Type == inboundauth.TypeNone {
			authCfg.Type = inboundauth.TypeBearer
		}
		authCfg.Tokens = append(authCfg.Tokens, cfg.InboundAuthTokens...)
	}
	return inboundauth.New(authCfg)
}
