// Package flightrecorder keeps a rolling runtime trace in memory and writes it to disk when a request times out.
package flightrecorder

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/trace"
	"sync"
	"time"

	"github.com/myrjola/liftguard/internal/errors"
)

const (
	defaultMinAge   = time.Minute
	defaultMaxBytes = 32 << 20
	// defaultCooldown is the minimum time between two captures.
	defaultCooldown = 10 * time.Minute
)

// Config configures the recorder. Zero durations and sizes take the defaults.
type Config struct {
	// TracesDirectory is created if missing.
	TracesDirectory string
	MinAge          time.Duration
	MaxBytes        uint64
	Cooldown        time.Duration
}

// Service is safe for concurrent use.
type Service struct {
	logger   *slog.Logger
	recorder *trace.FlightRecorder
	dir      string
	cooldown time.Duration
	now      func() time.Time

	mu          sync.Mutex
	lastCapture time.Time
}

// New creates a recorder writing into cfg.TracesDirectory. Call [Service.Start] to begin recording.
func New(logger *slog.Logger, cfg Config) (*Service, error) {
	if cfg.TracesDirectory == "" {
		return nil, errors.New("traces directory is required")
	}
	if err := os.MkdirAll(cfg.TracesDirectory, 0o750); err != nil { //nolint:mnd // owner and group.
		return nil, errors.Wrap(err, "create traces directory", slog.String("dir", cfg.TracesDirectory))
	}
	if cfg.MinAge <= 0 {
		cfg.MinAge = defaultMinAge
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	return &Service{
		logger:      logger,
		recorder:    trace.NewFlightRecorder(trace.FlightRecorderConfig{MinAge: cfg.MinAge, MaxBytes: cfg.MaxBytes}),
		dir:         cfg.TracesDirectory,
		cooldown:    cfg.Cooldown,
		now:         time.Now,
		mu:          sync.Mutex{},
		lastCapture: time.Time{},
	}, nil
}

func (s *Service) Start(ctx context.Context) error {
	if err := s.recorder.Start(); err != nil {
		return errors.Wrap(err, "start flight recorder")
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "flight recorder started",
		slog.String("dir", s.dir), slog.Duration("cooldown", s.cooldown))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.recorder.Stop()
	s.logger.LogAttrs(ctx, slog.LevelInfo, "flight recorder stopped")
}

// CaptureTimeoutTrace writes the recorded trace to a timeout-<timestamp>.trace file. Captures within the cooldown of
// the previous one are skipped. It reports whether a file was written.
func (s *Service) CaptureTimeoutTrace(ctx context.Context) bool {
	s.mu.Lock()
	now := s.now()
	if !s.lastCapture.IsZero() && now.Sub(s.lastCapture) < s.cooldown {
		s.mu.Unlock()
		s.logger.LogAttrs(ctx, slog.LevelDebug, "skipping trace capture during cooldown",
			slog.Time("last_capture", s.lastCapture))
		return false
	}
	s.lastCapture = now
	s.mu.Unlock()

	path := filepath.Join(s.dir, "timeout-"+now.UTC().Format("20060102-150405")+".trace")
	n, err := s.writeTrace(path)
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "failed to capture timeout trace", errors.SlogError(err))
		return false
	}
	s.logger.LogAttrs(ctx, slog.LevelWarn, "captured timeout trace", slog.String("file", path), slog.Int64("bytes", n))
	return true
}

func (s *Service) writeTrace(path string) (_ int64, err error) {
	f, err := os.Create(path) //nolint:gosec // path is built from the configured directory.
	if err != nil {
		return 0, errors.Wrap(err, "create trace file", slog.String("file", path))
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	n, err := s.recorder.WriteTo(f)
	if err != nil {
		return n, errors.Wrap(err, "write trace", slog.String("file", path))
	}
	return n, nil
}
