package crawl

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// trackingParams are query parameters that vary per campaign without
// changing page content. Stripping them keeps cache keys stable.
var trackingParams = map[string]bool{
	"gclid":   true,
	"fbclid":  true,
	"msclkid": true,
	"ref":     true,
	"source":  true,
}

// NormalizeURL canonicalizes a site URL for fetching and cache keys:
// https scheme enforced, host lowercased, fragment and tracking params
// removed, trailing slash dropped.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", eris.New("crawl: empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrap(err, "crawl: parse url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", eris.Errorf("crawl: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", eris.New("crawl: missing host")
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for param := range q {
		if trackingParams[param] || strings.HasPrefix(param, "utm_") {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()

	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String(), nil
}

// SameHost reports whether candidate belongs to the same registrable host
// as base, treating a www prefix as equivalent.
func SameHost(base, candidate *url.URL) bool {
	return stripWWW(base.Host) == stripWWW(candidate.Host)
}

func stripWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// Page types in extraction-priority order.
const (
	PageTypeHomepage = "homepage"
	PageTypeTeam     = "team"
	PageTypeAbout    = "about"
	PageTypeServices = "services"
	PageTypeContact  = "contact"
	PageTypeOther    = "other"
)

// pagePriority orders discovered links for fetching; lower is better.
var pagePriority = map[string]int{
	PageTypeTeam:     0,
	PageTypeAbout:    1,
	PageTypeServices: 2,
	PageTypeContact:  3,
	PageTypeOther:    4,
}

var pathKeywords = []struct {
	pageType string
	words    []string
}{
	{PageTypeTeam, []string{"team", "staff", "doctors", "veterinarians", "our-people", "meet"}},
	{PageTypeAbout, []string{"about", "our-story", "who-we-are", "mission"}},
	{PageTypeServices, []string{"services", "what-we-do", "care", "treatments", "surgery"}},
	{PageTypeContact, []string{"contact", "location", "hours", "appointment", "book"}},
}

// pathOf returns the path component of raw, or "" if unparseable.
func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Path
}

// ClassifyPath maps a URL path to a page type by keyword match.
func ClassifyPath(path string) string {
	p := strings.ToLower(path)
	if p == "" || p == "/" {
		return PageTypeHomepage
	}
	for _, pk := range pathKeywords {
		for _, w := range pk.words {
			if strings.Contains(p, w) {
				return pk.pageType
			}
		}
	}
	return PageTypeOther
}
