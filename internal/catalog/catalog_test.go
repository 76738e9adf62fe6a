package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	check "gopkg.in/check.v1"
)

var _ = check.Suite(new(ClientTestSuite))

func Test(t *testing.T) {
	check.TestingT(t)
}

const listingBody = `{
  "kind": "Listing",
  "data": {
    "after": "t5_2qh1i",
    "children": [
      {"kind": "t5", "data": {
        "url": "/r/gaming/",
        "display_name": "gaming",
        "subscribers": 1000,
        "audience_target": "Gaming, Tech",
        "description": "See also /r/pcgaming",
        "public_description": "A subreddit for gamers",
        "description_html": "&lt;a href=\"/r/games\"&gt;games&lt;/a&gt;"
      }},
      {"kind": "t5", "data": {"url": "", "display_name": "broken"}},
      {"kind": "t5", "data": {"url": "/r/music/", "display_name": "music", "subscribers": 5}}
    ]
  }
}`

type ClientTestSuite struct {
	server   *httptest.Server
	handler  http.HandlerFunc
	requests []*url.URL
}

func (s *ClientTestSuite) SetUpTest(c *check.C) {
	s.requests = nil
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingBody)
	}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests = append(s.requests, r.URL)
		s.handler(w, r)
	}))
}

func (s *ClientTestSuite) TearDownTest(c *check.C) {
	s.server.Close()
}

func (s *ClientTestSuite) newClient(c *check.C) *Client {
	client, err := NewClient(Config{
		BaseURL:        s.server.URL + "/reddits.json",
		UserAgent:      "tag-weaver-test",
		RequestTimeout: 5 * time.Second,
	})
	c.Assert(err, check.IsNil)
	return client
}

func (s *ClientTestSuite) TestFetchFirstPage(c *check.C) {
	page, err := s.newClient(c).Fetch(context.TODO(), "", 25)
	c.Assert(err, check.IsNil)

	c.Assert(s.requests, check.HasLen, 1)
	c.Assert(s.requests[0].Query().Get("limit"), check.Equals, "25")
	c.Assert(s.requests[0].Query().Has("after"), check.Equals, false)

	c.Assert(page.NextCursor, check.Equals, "t5_2qh1i")
	c.Assert(page.Entries, check.HasLen, 2)
	c.Assert(page.Entries[0], check.DeepEquals, Entry{
		URL:               "/r/gaming/",
		Name:              "gaming",
		Subscribers:       1000,
		AudienceTarget:    "Gaming, Tech",
		Description:       "See also /r/pcgaming",
		PublicDescription: "A subreddit for gamers",
		DescriptionHTML:   `&lt;a href="/r/games"&gt;games&lt;/a&gt;`,
	})
	c.Assert(page.Entries[1].URL, check.Equals, "/r/music/")
}

func (s *ClientTestSuite) TestFetchWithCursor(c *check.C) {
	client := s.newClient(c)

	_, err := client.Fetch(context.TODO(), "t3_xyz", 10)
	c.Assert(err, check.IsNil)
	// The same page can be requested again, e.g. after a restart
	_, err = client.Fetch(context.TODO(), "t3_xyz", 10)
	c.Assert(err, check.IsNil)

	c.Assert(s.requests, check.HasLen, 2)
	c.Assert(s.requests[1].Query().Get("after"), check.Equals, "t3_xyz")
	c.Assert(s.requests[1].Query().Get("limit"), check.Equals, "10")
}

func (s *ClientTestSuite) TestEndOfCatalog(c *check.C) {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"kind":"Listing","data":{"after":null,"children":[]}}`)
	}

	page, err := s.newClient(c).Fetch(context.TODO(), "t5_last", 5)
	c.Assert(err, check.IsNil)
	c.Assert(page.NextCursor, check.Equals, "")
	c.Assert(page.Entries, check.HasLen, 0)
}

func (s *ClientTestSuite) TestServerErrorIsReturned(c *check.C) {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}

	_, err := s.newClient(c).Fetch(context.TODO(), "", 5)
	c.Assert(err, check.ErrorMatches, "(?ms).*status 429.*")
}

func (s *ClientTestSuite) TestMalformedBody(c *check.C) {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>not json</html>`)
	}

	_, err := s.newClient(c).Fetch(context.TODO(), "", 5)
	c.Assert(errors.Is(err, ErrMalformedListing), check.Equals, true)

	s.handler = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"kind":"Listing"}`)
	}
	_, err = s.newClient(c).Fetch(context.TODO(), "", 5)
	c.Assert(errors.Is(err, ErrMalformedListing), check.Equals, true)
}

func (s *ClientTestSuite) TestBuildURL(c *check.C) {
	client, err := NewClient(Config{BaseURL: "https://www.reddit.com/reddits.json"})
	c.Assert(err, check.IsNil)

	c.Assert(client.BuildURL("", 1), check.Equals, "https://www.reddit.com/reddits.json?limit=1")
	c.Assert(client.BuildURL("t3_xyz", 100), check.Equals, "https://www.reddit.com/reddits.json?after=t3_xyz&limit=100")
}

func (s *ClientTestSuite) TestClampPageSize(c *check.C) {
	c.Assert(ClampPageSize(0, nil), check.Equals, 1)
	c.Assert(ClampPageSize(-4, nil), check.Equals, 1)
	c.Assert(ClampPageSize(1, nil), check.Equals, 1)
	c.Assert(ClampPageSize(50, nil), check.Equals, 50)
	c.Assert(ClampPageSize(100, nil), check.Equals, 100)
	c.Assert(ClampPageSize(101, nil), check.Equals, 100)
}
