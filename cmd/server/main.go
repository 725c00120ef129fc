// Command server runs the codeloop task service: it accepts
// natural-language instructions over HTTP, generates Python code through
// an OpenAI-compatible backend, executes it in a sandbox, and retries
// with error feedback until the code runs or the attempt budget is spent.
//
// Configuration is layered: built-in defaults, a YAML config file
// (-config flag, CODELOOP_CONFIG env, ./config.yaml,
// /etc/codeloop/config.yaml), then CODELOOP_* environment overrides.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	ctrlclient "sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	"github.com/codeloop-dev/codeloop/pkg/auth"
	"github.com/codeloop-dev/codeloop/pkg/auth/apikey"
	authjwt "github.com/codeloop-dev/codeloop/pkg/auth/jwt"
	"github.com/codeloop-dev/codeloop/pkg/config"
	"github.com/codeloop-dev/codeloop/pkg/generator/openai"
	"github.com/codeloop-dev/codeloop/pkg/observability"
	"github.com/codeloop-dev/codeloop/pkg/sandbox"
	"github.com/codeloop-dev/codeloop/pkg/sandbox/kubernetes"
	"github.com/codeloop-dev/codeloop/pkg/storage"
	"github.com/codeloop-dev/codeloop/pkg/storage/memory"
	"github.com/codeloop-dev/codeloop/pkg/storage/postgres"
	"github.com/codeloop-dev/codeloop/pkg/transport"
	"github.com/codeloop-dev/codeloop/pkg/workflow"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Generator backend.
	gen, err := openai.New(openai.Config{
		BaseURL:     cfg.Generator.BackendURL,
		APIKey:      cfg.Generator.APIKey,
		Model:       cfg.Generator.Model,
		Temperature: cfg.Generator.Temperature,
	})
	if err != nil {
		return fmt.Errorf("creating generator: %w", err)
	}
	defer gen.Close()

	// Sandbox executor.
	exec, err := buildExecutor(cfg)
	if err != nil {
		return fmt.Errorf("creating executor: %w", err)
	}
	defer exec.Close()

	// Task store.
	store, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	defer store.Close()

	// Workflow engine and runner.
	engine, err := workflow.New(gen, exec, workflow.Config{
		MaxAttempts:      cfg.Workflow.MaxAttempts,
		ExecutionTimeout: cfg.Workflow.ExecutionTimeout,
		OptimizePrompt:   cfg.Workflow.OptimizePrompt,
		ScanRequirements: cfg.Workflow.ScanRequirements,
	}, workflow.StoreHook(store))
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	runner := workflow.NewRunner(engine, store, cfg.Workflow.MaxConcurrent)

	// HTTP surface.
	handler := transport.NewHandler(runner, store, transport.DefaultConfig())

	mux := http.NewServeMux()
	mux.Handle("/", handler)
	if cfg.Observability.Metrics.Enabled {
		mux.Handle("GET "+cfg.Observability.Metrics.Path, promhttp.Handler())
	}

	middlewares := []transport.Middleware{observability.MetricsMiddleware}
	if authMW, err := buildAuthMiddleware(cfg); err != nil {
		return fmt.Errorf("creating auth: %w", err)
	} else if authMW != nil {
		middlewares = append(middlewares, authMW)
	}

	srv := transport.NewServer(mux,
		transport.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transport.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transport.WithLogger(logger),
		transport.WithMiddleware(middlewares...),
	)

	logger.Info("codeloop starting",
		"port", cfg.Server.Port,
		"backend", cfg.Generator.BackendURL,
		"model", cfg.Generator.Model,
		"sandbox_mode", cfg.Sandbox.Mode,
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type,
	)

	err = srv.ListenAndServe()

	// Give in-flight tasks a chance to reach a terminal state.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if rerr := runner.Shutdown(shutdownCtx); rerr != nil {
		logger.Warn("runner shutdown incomplete", "error", rerr.Error())
	}

	return err
}

// buildExecutor constructs the sandbox executor for the configured mode.
func buildExecutor(cfg *config.Config) (sandbox.Executor, error) {
	switch cfg.Sandbox.Mode {
	case "url":
		return sandbox.NewRESTExecutor(&sandbox.StaticURLAcquirer{URL: cfg.Sandbox.URL}), nil

	case "claim":
		scheme, err := kubernetes.NewScheme()
		if err != nil {
			return nil, fmt.Errorf("building scheme: %w", err)
		}
		restCfg, err := ctrlconfig.GetConfig()
		if err != nil {
			return nil, fmt.Errorf("loading kubeconfig: %w", err)
		}
		c, err := ctrlclient.New(restCfg, ctrlclient.Options{Scheme: scheme})
		if err != nil {
			return nil, fmt.Errorf("creating cluster client: %w", err)
		}
		acquirer := kubernetes.NewClaimAcquirer(c, cfg.Sandbox.Template, cfg.Sandbox.Namespace, cfg.Sandbox.ClaimTimeout)
		return sandbox.NewRESTExecutor(acquirer), nil

	case "local":
		return sandbox.NewLocalExecutor(cfg.Sandbox.AllowLocal), nil

	default:
		return nil, fmt.Errorf("unknown sandbox mode %q", cfg.Sandbox.Mode)
	}
}

// buildStore constructs the task store for the configured backend.
func buildStore(cfg *config.Config) (storage.TaskStore, error) {
	switch cfg.Storage.Type {
	case "memory":
		return memory.New(cfg.Storage.MaxSize), nil

	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return postgres.New(ctx, postgres.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		})

	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

// buildAuthMiddleware assembles the authentication chain. Returns nil
// when auth is disabled.
func buildAuthMiddleware(cfg *config.Config) (transport.Middleware, error) {
	var authenticators []auth.Authenticator

	switch cfg.Auth.Type {
	case "none":
		return nil, nil

	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			subject := k.Subject
			if subject == "" {
				subject = "api-key-client"
			}
			entries = append(entries, apikey.RawKeyEntry{
				Key:      k.Key,
				Identity: auth.Identity{Subject: subject},
			})
		}
		authenticators = append(authenticators, apikey.New(entries))

	case "jwt":
		authenticators = append(authenticators, authjwt.New(authjwt.Config{
			Secret: cfg.Auth.JWT.Secret,
			Issuer: cfg.Auth.JWT.Issuer,
		}))

	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Auth.Type)
	}

	chain := &auth.Chain{
		Authenticators:  authenticators,
		DefaultDecision: auth.No,
	}
	return transport.Middleware(auth.Middleware(chain, auth.DefaultBypassEndpoints)), nil
}
