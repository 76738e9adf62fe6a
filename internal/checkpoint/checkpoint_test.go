package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	check "gopkg.in/check.v1"

	"github.com/alvmarrod/tag-weaver/internal/storage"
)

var _ = check.Suite(new(CheckpointTestSuite))

func Test(t *testing.T) {
	check.TestingT(t)
}

type CheckpointTestSuite struct {
	dir string
}

func (s *CheckpointTestSuite) SetUpTest(c *check.C) {
	s.dir = c.MkDir()
}

func (s *CheckpointTestSuite) write(c *check.C, content string) string {
	path := filepath.Join(s.dir, "state.json")
	c.Assert(os.WriteFile(path, []byte(content), 0644), check.IsNil)
	return path
}

func (s *CheckpointTestSuite) TestAbsentFile(c *check.C) {
	state, err := Load(filepath.Join(s.dir, "state.json"))
	c.Assert(err, check.IsNil)
	c.Assert(state, check.DeepEquals, storage.CrawlState{})
}

func (s *CheckpointTestSuite) TestEmptyFile(c *check.C) {
	state, err := Load(s.write(c, " \n"))
	c.Assert(err, check.IsNil)
	c.Assert(state, check.DeepEquals, storage.CrawlState{})
}

func (s *CheckpointTestSuite) TestCursorOnly(c *check.C) {
	state, err := Load(s.write(c, `{"cursor":"t3_xyz"}`))
	c.Assert(err, check.IsNil)
	c.Assert(state, check.DeepEquals, storage.CrawlState{Cursor: "t3_xyz"})
}

func (s *CheckpointTestSuite) TestLegacyAfterKey(c *check.C) {
	state, err := Load(s.write(c, `{"after":"t5_abc","maxDepthReached":7,"maxDepthSubreddit":"/r/deep"}`))
	c.Assert(err, check.IsNil)
	c.Assert(state, check.DeepEquals, storage.CrawlState{
		Cursor:            "t5_abc",
		MaxDepthReached:   7,
		MaxDepthSubreddit: "/r/deep",
	})
}

func (s *CheckpointTestSuite) TestCorruptFile(c *check.C) {
	state, err := Load(s.write(c, `{"cursor":`))
	c.Assert(errors.Is(err, ErrCorruptCheckpoint), check.Equals, true)
	c.Assert(state, check.DeepEquals, storage.CrawlState{})
}

func (s *CheckpointTestSuite) TestNegativeDepthIsClamped(c *check.C) {
	state, err := Load(s.write(c, `{"cursor":"t3_a","maxDepthReached":-3,"maxDepthSubreddit":"/r/x"}`))
	c.Assert(err, check.IsNil)
	c.Assert(state, check.DeepEquals, storage.CrawlState{Cursor: "t3_a"})
}

func (s *CheckpointTestSuite) TestSaveAndLoad(c *check.C) {
	path := filepath.Join(s.dir, "state.json")
	saved := storage.CrawlState{Cursor: "t5_next", MaxDepthReached: 12, MaxDepthSubreddit: "/r/far"}

	c.Assert(Save(path, saved), check.IsNil)
	c.Assert(Save(path, saved), check.IsNil)

	loaded, err := Load(path)
	c.Assert(err, check.IsNil)
	c.Assert(loaded, check.DeepEquals, saved)

	entries, err := os.ReadDir(s.dir)
	c.Assert(err, check.IsNil)
	c.Assert(entries, check.HasLen, 1)
}

func (s *CheckpointTestSuite) TestSaveToMissingDir(c *check.C) {
	err := Save(filepath.Join(s.dir, "missing", "state.json"), storage.CrawlState{})
	c.Assert(err, check.ErrorMatches, "create checkpoint temp file: .*")
}
