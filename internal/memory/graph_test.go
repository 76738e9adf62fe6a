package memory

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	check "gopkg.in/check.v1"

	"github.com/alvmarrod/tag-weaver/internal/storage"
	"github.com/alvmarrod/tag-weaver/internal/storage/storetest"
)

var _ = check.Suite(new(inMemoryStoreTestSuite))
var _ = check.Suite(new(writeBackTestSuite))

func Test(t *testing.T) {
	check.TestingT(t)
}

type inMemoryStoreTestSuite struct {
	storetest.BaseSuite
}

func (s *inMemoryStoreTestSuite) SetUpTest(c *check.C) {
	s.SetStore(NewGraph(nil, nil))
}

func (s *inMemoryStoreTestSuite) TestNilLoggerIsSilent(c *check.C) {
	graph := NewGraph(nil, nil)
	c.Assert(graph.logger.Logger.Out, check.Equals, io.Discard)
}

type writeBackTestSuite struct {
	backing *storage.FileStore
	graph   *Graph
}

func (s *writeBackTestSuite) SetUpTest(c *check.C) {
	backing, err := storage.NewFileStore(filepath.Join(c.MkDir(), "records"), nil)
	c.Assert(err, check.IsNil)

	s.backing = backing
	s.graph = NewGraph(backing, nil)
}

func (s *writeBackTestSuite) TestWritesStayInMemoryUntilFlush(c *check.C) {
	ctx := context.TODO()
	record := storage.NewSubredditRecord("/r/golang")
	record.Tags["programming"] = 0

	c.Assert(s.graph.Put(ctx, "/r/golang", record), check.IsNil)

	persisted, err := s.backing.Get(ctx, "/r/golang")
	c.Assert(err, check.IsNil)
	c.Assert(persisted, check.IsNil)

	records, dirty := s.graph.GetStats()
	c.Assert(records, check.Equals, 1)
	c.Assert(dirty, check.Equals, 1)

	c.Assert(s.graph.Flush(ctx), check.IsNil)

	persisted, err = s.backing.Get(ctx, "/r/golang")
	c.Assert(err, check.IsNil)
	c.Assert(persisted, check.NotNil)
	c.Assert(persisted.Tags, check.DeepEquals, storage.Tags{"programming": 0})

	_, dirty = s.graph.GetStats()
	c.Assert(dirty, check.Equals, 0)
}

func (s *writeBackTestSuite) TestMissFallsThroughToBacking(c *check.C) {
	ctx := context.TODO()
	record := storage.NewSubredditRecord("/r/rust")
	record.Tags["programming"] = 1
	c.Assert(s.backing.Put(ctx, "/r/rust", record), check.IsNil)

	got, err := s.graph.Get(ctx, "/r/rust")
	c.Assert(err, check.IsNil)
	c.Assert(got, check.NotNil)
	c.Assert(got.Tags, check.DeepEquals, storage.Tags{"programming": 1})

	// Loaded records are cached but not dirty
	records, dirty := s.graph.GetStats()
	c.Assert(records, check.Equals, 1)
	c.Assert(dirty, check.Equals, 0)
	c.Assert(s.graph.ids(), check.DeepEquals, []string{"/r/rust"})
}

func (s *writeBackTestSuite) TestFailedFlushKeepsRecordsDirty(c *check.C) {
	ctx := context.TODO()
	failing := &failingStore{err: errors.New("disk full")}
	graph := NewGraph(failing, nil)

	c.Assert(graph.Put(ctx, "/r/a", storage.NewSubredditRecord("/r/a")), check.IsNil)
	c.Assert(graph.Put(ctx, "/r/b", storage.NewSubredditRecord("/r/b")), check.IsNil)

	err := graph.Flush(ctx)
	c.Assert(err, check.ErrorMatches, "(?ms).*disk full.*")

	_, dirty := graph.GetStats()
	c.Assert(dirty, check.Equals, 2)

	failing.err = nil
	c.Assert(graph.Flush(ctx), check.IsNil)
	c.Assert(failing.puts, check.Equals, 4)
}

func (s *writeBackTestSuite) TestNilRecordRejected(c *check.C) {
	c.Assert(s.graph.Put(context.TODO(), "/r/a", nil), check.ErrorMatches, "nil record for /r/a")
}

type failingStore struct {
	err  error
	puts int
}

func (f *failingStore) Get(context.Context, string) (*storage.SubredditRecord, error) {
	return nil, f.err
}

func (f *failingStore) Put(context.Context, string, *storage.SubredditRecord) error {
	f.puts++
	return f.err
}

func (f *failingStore) Close() error { return nil }
