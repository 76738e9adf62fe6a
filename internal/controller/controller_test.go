package controller

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	check "gopkg.in/check.v1"

	"github.com/alvmarrod/tag-weaver/internal/checkpoint"
	"github.com/alvmarrod/tag-weaver/internal/metrics"
	"github.com/alvmarrod/tag-weaver/internal/storage"
)

var _ = check.Suite(new(ControllerTestSuite))

func Test(t *testing.T) {
	check.TestingT(t)
}

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }

type countingFlusher struct {
	calls      int
	statsCalls int
	err        error
}

func (f *countingFlusher) Flush(context.Context) error {
	f.calls++
	return f.err
}

func (f *countingFlusher) GetStats() (int, int) {
	f.statsCalls++
	return 3, 1
}

type ControllerTestSuite struct {
	dir         string
	statePath   string
	metricsPath string
	state       *storage.CrawlState
	flusher     *countingFlusher
	tracker     *metrics.Tracker
}

func (s *ControllerTestSuite) SetUpTest(c *check.C) {
	s.dir = c.MkDir()
	s.statePath = filepath.Join(s.dir, "state.json")
	s.metricsPath = filepath.Join(s.dir, "metrics.log")
	s.state = &storage.CrawlState{}
	s.flusher = &countingFlusher{}
	s.tracker = metrics.NewTracker("run")
}

func (s *ControllerTestSuite) newController(c *check.C, driver Runner, ephemeral bool) *Controller {
	ctl, err := New(Config{
		Driver:      driver,
		State:       s.state,
		StatePath:   s.statePath,
		MetricsPath: s.metricsPath,
		Ephemeral:   ephemeral,
		Flusher:     s.flusher,
		Tracker:     s.tracker,
	})
	c.Assert(err, check.IsNil)
	return ctl
}

func (s *ControllerTestSuite) readMetrics(c *check.C) storage.Metrics {
	data, err := os.ReadFile(s.metricsPath)
	c.Assert(err, check.IsNil)
	var m storage.Metrics
	c.Assert(json.Unmarshal(data, &m), check.IsNil)
	return m
}

func (s *ControllerTestSuite) TestConfigValidation(c *check.C) {
	_, err := New(Config{State: s.state, StatePath: s.statePath})
	c.Assert(err, check.ErrorMatches, "(?ms).*crawl driver not provided.*")

	_, err = New(Config{Driver: runnerFunc(nil), StatePath: s.statePath})
	c.Assert(err, check.ErrorMatches, "(?ms).*crawl state not provided.*")

	_, err = New(Config{Driver: runnerFunc(nil), State: s.state})
	c.Assert(err, check.ErrorMatches, "(?ms).*checkpoint path not provided.*")

	_, err = New(Config{Driver: runnerFunc(nil), State: s.state, Ephemeral: true})
	c.Assert(err, check.IsNil)
}

func (s *ControllerTestSuite) TestResumesAndSavesCheckpoint(c *check.C) {
	c.Assert(os.WriteFile(s.statePath, []byte(`{"cursor":"t3_xyz"}`), 0644), check.IsNil)

	var seen string
	driver := runnerFunc(func(ctx context.Context) error {
		seen = s.state.Cursor
		s.state.Cursor = "t3_later"
		s.state.ObserveDepth(5, "/r/deep")
		return nil
	})

	c.Assert(s.newController(c, driver, false).Run(context.TODO()), check.IsNil)
	c.Assert(seen, check.Equals, "t3_xyz")

	saved, err := checkpoint.Load(s.statePath)
	c.Assert(err, check.IsNil)
	c.Assert(saved, check.DeepEquals, storage.CrawlState{
		Cursor:            "t3_later",
		MaxDepthReached:   5,
		MaxDepthSubreddit: "/r/deep",
	})

	m := s.readMetrics(c)
	c.Assert(m.TerminationReason, check.Equals, ReasonSignal)
	c.Assert(m.MaxDepthReached, check.Equals, 5)
	c.Assert(s.flusher.calls, check.Equals, 1)
}

func (s *ControllerTestSuite) TestAbsentCheckpointStartsFromFirstPage(c *check.C) {
	s.state.Cursor = "stale"

	var seen = "unset"
	driver := runnerFunc(func(ctx context.Context) error {
		seen = s.state.Cursor
		return nil
	})

	c.Assert(s.newController(c, driver, false).Run(context.TODO()), check.IsNil)
	c.Assert(seen, check.Equals, "")
}

func (s *ControllerTestSuite) TestCorruptCheckpointIsNotFatal(c *check.C) {
	c.Assert(os.WriteFile(s.statePath, []byte(`{not json`), 0644), check.IsNil)

	ran := false
	driver := runnerFunc(func(ctx context.Context) error {
		ran = true
		c.Assert(*s.state, check.DeepEquals, storage.CrawlState{})
		return nil
	})

	c.Assert(s.newController(c, driver, false).Run(context.TODO()), check.IsNil)
	c.Assert(ran, check.Equals, true)

	// The corrupt file is replaced on shutdown
	_, err := checkpoint.Load(s.statePath)
	c.Assert(err, check.IsNil)
}

func (s *ControllerTestSuite) TestFatalErrorStillCheckpoints(c *check.C) {
	c.Assert(os.WriteFile(s.statePath, []byte(`{"cursor":"t5_good"}`), 0644), check.IsNil)
	fatal := errors.New("catalog page fetch failed")

	err := s.newController(c, runnerFunc(func(context.Context) error { return fatal }), false).Run(context.TODO())
	c.Assert(err, check.Equals, fatal)

	saved, err := checkpoint.Load(s.statePath)
	c.Assert(err, check.IsNil)
	c.Assert(saved.Cursor, check.Equals, "t5_good")
	c.Assert(s.readMetrics(c).TerminationReason, check.Equals, ReasonFatalError)
}

func (s *ControllerTestSuite) TestEphemeralSkipsCheckpoint(c *check.C) {
	c.Assert(os.WriteFile(s.statePath, []byte(`{"cursor":"t3_xyz"}`), 0644), check.IsNil)

	driver := runnerFunc(func(ctx context.Context) error {
		c.Assert(s.state.Cursor, check.Equals, "")
		s.state.Cursor = "t3_moved"
		return nil
	})

	c.Assert(s.newController(c, driver, true).Run(context.TODO()), check.IsNil)

	data, err := os.ReadFile(s.statePath)
	c.Assert(err, check.IsNil)
	c.Assert(string(data), check.Equals, `{"cursor":"t3_xyz"}`)
	c.Assert(s.flusher.calls, check.Equals, 1)
}

func (s *ControllerTestSuite) TestShutdownRunsOnce(c *check.C) {
	s.flusher.err = errors.New("disk full")
	ctl := s.newController(c, runnerFunc(func(context.Context) error { return nil }), false)

	c.Assert(ctl.Run(context.TODO()), check.IsNil)
	err := ctl.Shutdown(ReasonSignal)
	c.Assert(err, check.ErrorMatches, "(?ms).*flush records: disk full.*")
	c.Assert(s.flusher.calls, check.Equals, 1)
	c.Assert(s.flusher.statsCalls, check.Equals, 1)
}

func (s *ControllerTestSuite) TestRunHonoursCancellation(c *check.C) {
	ctx, cancelFn := context.WithCancel(context.TODO())
	driver := runnerFunc(func(ctx context.Context) error {
		cancelFn()
		<-ctx.Done()
		return nil
	})

	c.Assert(s.newController(c, driver, false).Run(ctx), check.IsNil)
	c.Assert(s.readMetrics(c).TerminationReason, check.Equals, ReasonSignal)
}
