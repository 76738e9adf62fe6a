// Package storetest provides a backend-agnostic test suite for
// storage.RecordStore implementations.
package storetest

import (
	"context"
	"sort"

	check "gopkg.in/check.v1"

	"github.com/alvmarrod/tag-weaver/internal/storage"
)

// BaseSuite defines a re-usable set of record store tests. Embed it in a
// backend specific suite and call SetStore from SetUpTest.
type BaseSuite struct {
	store storage.RecordStore
}

// SetStore configures the suite to run against s.
func (suite *BaseSuite) SetStore(s storage.RecordStore) {
	suite.store = s
}

// Store returns the record store under test.
func (suite *BaseSuite) Store() storage.RecordStore {
	return suite.store
}

// TestGetMissing verifies that an unknown id is reported as absent.
func (suite *BaseSuite) TestGetMissing(c *check.C) {
	record, err := suite.store.Get(context.TODO(), "/r/does-not-exist")
	c.Assert(err, check.IsNil)
	c.Assert(record, check.IsNil)
}

// TestPutGetRoundTrip verifies that every record field survives persistence.
func (suite *BaseSuite) TestPutGetRoundTrip(c *check.C) {
	original := &storage.SubredditRecord{
		URL:               "/r/golang",
		Name:              "golang",
		TotalSubscribers:  250000,
		Fetched:           true,
		Tags:              storage.Tags{"programming": 0, "tech": 2},
		RelatedSubreddits: []string{"/r/rust", "/r/programming"},
	}

	c.Assert(suite.store.Put(context.TODO(), "/r/golang", original), check.IsNil)

	got, err := suite.store.Get(context.TODO(), "/r/golang")
	c.Assert(err, check.IsNil)
	c.Assert(got, check.NotNil)
	c.Assert(got.URL, check.Equals, original.URL)
	c.Assert(got.Name, check.Equals, original.Name)
	c.Assert(got.TotalSubscribers, check.Equals, original.TotalSubscribers)
	c.Assert(got.Fetched, check.Equals, true)
	c.Assert(got.Tags, check.DeepEquals, original.Tags)

	related := append([]string{}, got.RelatedSubreddits...)
	sort.Strings(related)
	c.Assert(related, check.DeepEquals, []string{"/r/programming", "/r/rust"})
}

// TestPutReplaces verifies that Put fully replaces a stored record instead of
// merging fields.
func (suite *BaseSuite) TestPutReplaces(c *check.C) {
	first := &storage.SubredditRecord{
		URL:               "/r/music",
		Name:              "music",
		Tags:              storage.Tags{"music": 0, "audio": 1},
		RelatedSubreddits: []string{"/r/jazz"},
	}
	c.Assert(suite.store.Put(context.TODO(), "/r/music", first), check.IsNil)

	second := storage.NewSubredditRecord("/r/music")
	second.Tags["music"] = 0
	c.Assert(suite.store.Put(context.TODO(), "/r/music", second), check.IsNil)

	got, err := suite.store.Get(context.TODO(), "/r/music")
	c.Assert(err, check.IsNil)
	c.Assert(got, check.NotNil)
	c.Assert(got.Name, check.Equals, "")
	c.Assert(got.Tags, check.DeepEquals, storage.Tags{"music": 0})
	c.Assert(got.RelatedSubreddits, check.HasLen, 0)
}

// TestEmptyCollections verifies that records without tags or mentions come
// back with usable, non-nil collections.
func (suite *BaseSuite) TestEmptyCollections(c *check.C) {
	c.Assert(suite.store.Put(context.TODO(), "/r/empty", storage.NewSubredditRecord("/r/empty")), check.IsNil)

	got, err := suite.store.Get(context.TODO(), "/r/empty")
	c.Assert(err, check.IsNil)
	c.Assert(got, check.NotNil)
	c.Assert(got.Tags, check.NotNil)
	c.Assert(got.RelatedSubreddits, check.NotNil)
}

// TestReturnedRecordIsDetached verifies that mutating a returned record does
// not leak into the store.
func (suite *BaseSuite) TestReturnedRecordIsDetached(c *check.C) {
	record := storage.NewSubredditRecord("/r/art")
	record.Tags["art"] = 0
	c.Assert(suite.store.Put(context.TODO(), "/r/art", record), check.IsNil)

	record.Tags["art"] = 7
	got, err := suite.store.Get(context.TODO(), "/r/art")
	c.Assert(err, check.IsNil)
	got.Tags["painting"] = 3

	again, err := suite.store.Get(context.TODO(), "/r/art")
	c.Assert(err, check.IsNil)
	c.Assert(again.Tags, check.DeepEquals, storage.Tags{"art": 0})
}
