// Package extract turns raw catalog fields into tags and mentioned subreddit
// identifiers. Every function here is pure and total: bad input yields an
// empty result, never an error.
package extract

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/alvmarrod/tag-weaver/internal/catalog"
)

// mentionPattern matches r/name, /r/name and reddit.com/r/name references.
// Submatch 1 is the subreddit name.
var mentionPattern = regexp.MustCompile(`(?i)(?:^|[^a-z0-9_/]|reddit\.com)/?r/([a-z0-9][a-z0-9_]{0,20})\b`)

// Pseudo subreddits that aggregate others and never carry their own audience
var excludedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^/r/(all|popular|random|randnsfw|myrandom|friends|mod|home)$`),
	regexp.MustCompile(`^/r/u_`),
}

var stripPolicy = bluemonday.StrictPolicy()

// ExtractTags splits an audience target text into tag names. Tags are
// delimited by commas (semicolons, pipes and newlines are accepted too),
// trimmed, and deduplicated keeping the first occurrence.
func ExtractTags(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || r == '|' || r == '\n'
	})

	seen := make(map[string]bool)
	tags := []string{}
	for _, part := range parts {
		tag := strings.Join(strings.Fields(part), " ")
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}

// NodeID returns the canonical identifier for a subreddit url: lower case,
// scheme and host stripped, in /r/name form without a trailing slash.
// Returns "" when nothing usable remains.
func NodeID(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return ""
	}

	// Handle protocol-relative URLs
	if strings.HasPrefix(s, "//") {
		s = "https:" + s
	}
	if u, err := url.Parse(s); err == nil {
		s = u.Path
	}

	s = strings.ToLower(strings.Trim(s, "/"))
	if s == "" {
		return ""
	}

	parts := strings.Split(s, "/")
	if len(parts) >= 2 && parts[0] == "r" && parts[1] != "" {
		return "/r/" + parts[1]
	}
	return "/" + s
}

// IsExcluded checks if an identifier is not a real subreddit: user profiles,
// other non /r/ paths and pseudo subreddits
func IsExcluded(id string) bool {
	if !strings.HasPrefix(id, "/r/") {
		return true
	}
	for _, pattern := range excludedPatterns {
		if pattern.MatchString(id) {
			return true
		}
	}
	return false
}

// ExtractMentions returns the identifiers of subreddits mentioned in an
// entry's descriptions, in first-seen order, without the entry itself and
// without pseudo subreddits.
func ExtractMentions(entry catalog.Entry) []string {
	self := NodeID(entry.URL)
	seen := map[string]bool{self: true}
	mentions := []string{}

	add := func(id string) {
		if !strings.HasPrefix(id, "/r/") || seen[id] || IsExcluded(id) {
			return
		}
		seen[id] = true
		mentions = append(mentions, id)
	}

	for _, text := range []string{entry.PublicDescription, entry.Description} {
		for _, id := range MentionsInText(text) {
			add(id)
		}
	}

	if entry.DescriptionHTML != "" {
		for _, id := range mentionsInHTML(entry.DescriptionHTML) {
			add(id)
		}
	}

	return mentions
}

// MentionsInText scans plain text for subreddit references
func MentionsInText(text string) []string {
	var ids []string
	for _, match := range mentionPattern.FindAllStringSubmatch(text, -1) {
		ids = append(ids, "/r/"+strings.ToLower(match[1]))
	}
	return ids
}

// mentionsInHTML reads anchors first, then scans the visible text. The
// catalog serves description HTML entity-escaped.
func mentionsInHTML(escaped string) []string {
	markup := html.UnescapeString(escaped)

	var ids []string
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err == nil {
		doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			if id := subredditFromHref(href); id != "" {
				ids = append(ids, id)
			}
		})
	}

	text := html.UnescapeString(stripPolicy.Sanitize(markup))
	return append(ids, MentionsInText(text)...)
}

// subredditFromHref returns the identifier an anchor points at, or "" for
// links leaving reddit or pointing at anything but a subreddit
func subredditFromHref(href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host != "" && host != "reddit.com" && !strings.HasSuffix(host, ".reddit.com") {
		return ""
	}

	id := NodeID(u.Path)
	if !strings.HasPrefix(id, "/r/") {
		return ""
	}
	return id
}
