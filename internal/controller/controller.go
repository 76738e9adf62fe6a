// Package controller owns the crawl lifecycle: resume from the checkpoint,
// drive the crawl and persist everything exactly once on the way out.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/alvmarrod/tag-weaver/internal/checkpoint"
	"github.com/alvmarrod/tag-weaver/internal/storage"
)

// Termination reasons recorded in the metrics file
const (
	ReasonSignal     = "signal"
	ReasonFatalError = "fatal_error"
)

// Runner drives the crawl until ctx is cancelled or a fatal error occurs
type Runner interface {
	Run(ctx context.Context) error
}

// Flusher persists buffered writes
type Flusher interface {
	Flush(ctx context.Context) error
	GetStats() (recordCount, dirtyCount int)
}

// Tracker receives the final crawl statistics
type Tracker interface {
	ObserveDepth(state storage.CrawlState)
	LogProgress() string
	WriteToFile(path, reason string) error
}

// Config configures a Controller
type Config struct {
	// Crawl driver. Required.
	Driver Runner

	// Crawl position shared with the driver. Loaded from the checkpoint on
	// start. Required.
	State *storage.CrawlState

	// Checkpoint file location. Required unless Ephemeral.
	StatePath string

	// Metrics file location. Empty skips the metrics file.
	MetricsPath string

	// Ephemeral runs neither load nor save the checkpoint.
	Ephemeral bool

	// Write-back cache flushed on shutdown. Optional.
	Flusher Flusher

	// Optional.
	Tracker Tracker

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (config *Config) validate() error {
	var err error

	if config.Driver == nil {
		err = multierror.Append(err, fmt.Errorf("crawl driver not provided"))
	}

	if config.State == nil {
		err = multierror.Append(err, fmt.Errorf("crawl state not provided"))
	}

	if !config.Ephemeral && config.StatePath == "" {
		err = multierror.Append(err, fmt.Errorf("checkpoint path not provided"))
	}

	if config.Logger == nil {
		config.Logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}

	return err
}

// Controller runs one crawl from checkpoint to shutdown
type Controller struct {
	config       Config
	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a crawl controller
func New(config Config) (*Controller, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("controller: config validation failed: %w", err)
	}
	return &Controller{config: config}, nil
}

// Run resumes from the checkpoint and blocks until ctx is cancelled or the
// driver fails, then shuts down. The driver's fatal error is returned; a
// failed shutdown is logged.
func (ctl *Controller) Run(ctx context.Context) error {
	logger := ctl.config.Logger

	if !ctl.config.Ephemeral {
		state, err := checkpoint.Load(ctl.config.StatePath)
		switch {
		case errors.Is(err, checkpoint.ErrCorruptCheckpoint):
			logger.Warnf("Ignoring checkpoint: %v", err)
		case err != nil:
			logger.Warnf("Failed to load checkpoint, starting from defaults: %v", err)
		}
		*ctl.config.State = state
	}
	logger.Infof("Starting search from %q", ctl.config.State.Cursor)

	runErr := ctl.config.Driver.Run(ctx)

	reason := ReasonSignal
	if runErr != nil {
		reason = ReasonFatalError
		logger.Errorf("Crawl stopped: %v", runErr)
	}

	if err := ctl.Shutdown(reason); err != nil {
		logger.Errorf("Shutdown incomplete: %v", err)
	}

	return runErr
}

// Shutdown flushes buffered records, saves the checkpoint and writes the
// metrics file. Only the first call does any work.
func (ctl *Controller) Shutdown(reason string) error {
	ctl.shutdownOnce.Do(func() {
		ctl.shutdownErr = ctl.shutdown(reason)
	})
	return ctl.shutdownErr
}

func (ctl *Controller) shutdown(reason string) error {
	var (
		logger = ctl.config.Logger
		errs   error
	)

	logger.Info("Initiating graceful shutdown...")

	logger.Info("Step 1/3: Flushing buffered records...")
	if ctl.config.Flusher != nil {
		records, dirty := ctl.config.Flusher.GetStats()
		logger.Infof("Record cache holds %d records, %d pending write", records, dirty)
		if err := ctl.config.Flusher.Flush(context.Background()); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("flush records: %w", err))
			logger.Errorf("Failed to flush records: %v", err)
		}
	}

	logger.Info("Step 2/3: Saving checkpoint...")
	state := *ctl.config.State
	if ctl.config.Ephemeral {
		logger.Info("Ephemeral run, checkpoint not saved")
	} else if err := checkpoint.Save(ctl.config.StatePath, state); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("save checkpoint: %w", err))
		logger.Errorf("Failed to save checkpoint: %v", err)
	} else {
		logger.Infof("Crawler terminated, current state saved as %q", state.Cursor)
	}

	logger.Info("Step 3/3: Writing final metrics...")
	if ctl.config.Tracker != nil {
		ctl.config.Tracker.ObserveDepth(state)
		logger.Info("Final stats: " + ctl.config.Tracker.LogProgress())

		if ctl.config.MetricsPath != "" {
			if err := ctl.config.Tracker.WriteToFile(ctl.config.MetricsPath, reason); err != nil {
				errs = multierror.Append(errs, err)
				logger.Errorf("Failed to write metrics: %v", err)
			} else {
				logger.Infof("Metrics written to %s", ctl.config.MetricsPath)
			}
		}
	}

	logger.Info("Graceful shutdown complete")
	return errs
}
