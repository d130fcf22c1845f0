package crawl

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
)

const maxBodyBytes = 512 * 1024

// FetchResult is one fetched page plus the same-host links found on it.
type FetchResult struct {
	Page  model.Page
	Links []string
}

// Fetcher retrieves a single page. Implementations must be safe for
// concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*FetchResult, error)
}

// HTTPFetcher fetches pages with net/http and converts HTML to plaintext.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates an HTTPFetcher with per-request timeouts.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// Fetch retrieves pageURL, classifies it, and extracts text and links.
// Transient HTTP statuses come back as resilience.TransientError so the
// retry policy can distinguish them from hard failures like 404.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "crawl: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; LeadgenBot/1.0)")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "crawl: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "crawl: read body")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("crawl: status %d", resp.StatusCode), resp.StatusCode)
	}
	if blocked, marker := detectBlock(resp, body); blocked {
		return nil, eris.Errorf("crawl: blocked (%s)", marker)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("crawl: status %d", resp.StatusCode)
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, eris.Wrap(err, "crawl: parse url")
	}

	return &FetchResult{
		Page: model.Page{
			URL:        pageURL,
			Title:      extractTitle(body),
			Type:       ClassifyPath(parsed.Path),
			Text:       stripHTML(string(body)),
			StatusCode: resp.StatusCode,
		},
		Links: extractLinks(parsed, body),
	}, nil
}

// detectBlock checks a response for anti-bot challenge markers.
func detectBlock(resp *http.Response, body []byte) (bool, string) {
	if resp.StatusCode == 403 || resp.StatusCode == 503 {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("server") == "cloudflare" {
			return true, "cloudflare"
		}
	}

	lower := strings.ToLower(string(body))
	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") {
		return true, "cloudflare"
	}
	if strings.Contains(lower, "recaptcha") || strings.Contains(lower, "hcaptcha") {
		return true, "captcha"
	}
	return false, ""
}

var (
	titleRe = regexp.MustCompile(`(?i)<title[^>]*>(.*?)</title>`)
	hrefRe  = regexp.MustCompile(`(?i)<a[^>]+href=["']([^"'#]+)["']`)
	tagRe   = regexp.MustCompile(`<[^>]+>`)
	spaceRe = regexp.MustCompile(`[ \t]+`)
	nlRe    = regexp.MustCompile(`\n{3,}`)
)

// extractTitle pulls the <title> from HTML.
func extractTitle(body []byte) string {
	m := titleRe.FindSubmatch(body)
	if len(m) > 1 {
		return strings.TrimSpace(string(m[1]))
	}
	return ""
}

// extractLinks returns normalized same-host links found in the document.
func extractLinks(base *url.URL, body []byte) []string {
	seen := make(map[string]bool)
	var out []string

	for _, m := range hrefRe.FindAllSubmatch(body, -1) {
		href := strings.TrimSpace(string(m[1]))
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		if !SameHost(base, abs) {
			continue
		}

		normalized, err := NormalizeURL(abs.String())
		if err != nil || seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}
	return out
}

// stripHTML removes scripts/styles/nav/footer, strips tags, decodes entities,
// and collapses whitespace. The result is plaintext suitable for LLM extraction.
func stripHTML(html string) string {
	for _, tag := range []string{"script", "style", "nav", "footer"} {
		re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
		html = re.ReplaceAllString(html, "")
	}

	html = tagRe.ReplaceAllString(html, " ")

	r := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	html = r.Replace(html)

	html = spaceRe.ReplaceAllString(html, " ")
	html = nlRe.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}
