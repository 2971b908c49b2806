package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/myrjola/liftguard/internal/ai"
	"github.com/myrjola/liftguard/internal/envstruct"
	"github.com/myrjola/liftguard/internal/errors"
	"github.com/myrjola/liftguard/internal/flightrecorder"
	"github.com/myrjola/liftguard/internal/logging"
	"github.com/myrjola/liftguard/internal/mcpserver"
	"github.com/myrjola/liftguard/internal/metrics"
	"github.com/myrjola/liftguard/internal/safety"
	"github.com/myrjola/liftguard/internal/sqlite"
	"github.com/myrjola/liftguard/internal/workout"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev" //nolint:gochecknoglobals // build metadata.

type application struct {
	logger          *slog.Logger
	service         *workout.Service
	metrics         *metrics.Manager
	mcpHandler      http.Handler
	flightRecorder  *flightrecorder.Service
	requestTimeout  time.Duration
	generateTimeout time.Duration
}

type config struct {
	// Addr is the address to listen on. It's possible to choose the address dynamically with localhost:0.
	Addr string `env:"LIFTGUARD_ADDR" envDefault:"localhost:8081"`
	// SqliteURL is the URL to the SQLite database. You can use ":memory:" for an ethereal in-memory database.
	SqliteURL string `env:"LIFTGUARD_SQLITE_URL" envDefault:"./liftguard.sqlite3"`
	// PolicyPath is an optional YAML file overriding the built-in safety policy.
	PolicyPath string `env:"LIFTGUARD_POLICY_PATH" envDefault:""`
	// OpenAIAPIKey enables AI plan generation. Without it every generated plan is the fallback plan.
	OpenAIAPIKey  string `env:"OPENAI_API_KEY" envDefault:""`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:""`
	AIModel       string `env:"LIFTGUARD_AI_MODEL" envDefault:"gpt-4o"`
	// AIAttemptTimeout bounds a single model call.
	AIAttemptTimeout time.Duration `env:"LIFTGUARD_AI_ATTEMPT_TIMEOUT" envDefault:"15s"`
	// AIMaxAttempts above 3 is capped to 3.
	AIMaxAttempts    int           `env:"LIFTGUARD_AI_MAX_ATTEMPTS" envDefault:"3"`
	RequestTimeout   time.Duration `env:"LIFTGUARD_REQUEST_TIMEOUT" envDefault:"2s"`
	// GenerateTimeout must cover every model attempt including backoff.
	GenerateTimeout time.Duration `env:"LIFTGUARD_GENERATE_TIMEOUT" envDefault:"60s"`
	// TracesDirectory enables the flight recorder. A runtime trace is written there when a request times out.
	TracesDirectory string `env:"LIFTGUARD_TRACES_DIRECTORY" envDefault:""`
}

func loadPolicy(path string) (safety.Policy, error) {
	if path == "" {
		return safety.DefaultPolicy(), nil
	}
	policy, err := safety.LoadPolicy(path)
	if err != nil {
		return safety.Policy{}, errors.Wrap(err, "load policy", slog.String("path", path))
	}
	return policy, nil
}

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	var (
		cancel context.CancelFunc
		err    error
	)

	ctx, cancel = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg config
	if err = envstruct.Populate(&cfg, lookupEnv); err != nil {
		return errors.Wrap(err, "populate config")
	}

	policy, err := loadPolicy(cfg.PolicyPath)
	if err != nil {
		return err
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "loaded safety policy", slog.String("version", policy.Version))

	db, err := sqlite.NewDatabase(ctx, cfg.SqliteURL, logger)
	if err != nil {
		return errors.Wrap(err, "open db", slog.String("url", cfg.SqliteURL))
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "failed to close db", errors.SlogError(closeErr))
		}
	}()
	logger.LogAttrs(ctx, slog.LevelInfo, "connected to db")

	var client ai.Client
	if cfg.OpenAIAPIKey != "" {
		client = ai.NewOpenAIClient(logger, ai.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.AIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
	} else {
		logger.LogAttrs(ctx, slog.LevelWarn, "OPENAI_API_KEY not set, generated plans use the fallback")
	}
	generator := ai.NewGenerator(logger, client, ai.GeneratorConfig{ //nolint:exhaustruct // defaults.
		MaxAttempts:    cfg.AIMaxAttempts,
		AttemptTimeout: cfg.AIAttemptTimeout,
	})

	var recorder *flightrecorder.Service
	if cfg.TracesDirectory != "" {
		if recorder, err = flightrecorder.New(logger, flightrecorder.Config{ //nolint:exhaustruct // defaults.
			TracesDirectory: cfg.TracesDirectory,
		}); err != nil {
			return errors.Wrap(err, "new flight recorder")
		}
		if err = recorder.Start(ctx); err != nil {
			return errors.Wrap(err, "start flight recorder")
		}
		defer recorder.Stop(context.WithoutCancel(ctx))
	}

	m := metrics.NewProcessManager()
	service := workout.NewService(logger, workout.NewSQLiteHistoryRepository(db, logger), policy, generator, m)

	app := application{
		logger:          logger,
		service:         service,
		metrics:         m,
		mcpHandler:      mcpserver.Handler(mcpserver.New(service, version, logger)),
		flightRecorder:  recorder,
		requestTimeout:  cfg.RequestTimeout,
		generateTimeout: cfg.GenerateTimeout,
	}

	if err = app.configureAndStartServer(ctx, cfg.Addr, app.routes()); err != nil {
		return errors.Wrap(err, "start server")
	}
	return nil
}

func main() {
	ctx := context.Background()
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)
	if err := run(ctx, logger, os.LookupEnv); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failure starting application", errors.SlogError(err))
		os.Exit(1)
	}
}
