package extract

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/leadgen-cli/internal/crawl"
	"github.com/sells-group/leadgen-cli/internal/model"
)

// Per-page-type character budgets for prompt assembly. Team pages carry
// the staffing signal so they get the largest share.
var pageBudgets = map[string]int{
	crawl.PageTypeTeam:     3000,
	crawl.PageTypeAbout:    2500,
	crawl.PageTypeHomepage: 2000,
	crawl.PageTypeServices: 1000,
	crawl.PageTypeContact:  500,
	crawl.PageTypeOther:    500,
}

// totalPromptBudget caps site content across all pages.
const totalPromptBudget = 8000

const systemPrompt = `You are a data extraction assistant for veterinary practice websites.
Extract only facts stated in the provided content. Never guess or infer values
that are not supported by the text. Respond with a single JSON object and no
other text.`

const extractionPrompt = `Practice: %s
Location: %s

Website content by page:
%s

Extract the following fields from the content above. Use null for anything
the content does not state. Return a valid JSON object exactly matching:
{
  "staff_count": <number of veterinarians on staff, or null>,
  "services": [<service names>],
  "emergency_service": <true|false>,
  "multi_location": <true|false>,
  "location_count": <number of locations, or null>,
  "online_booking": <true|false>,
  "patient_portal": <true|false>,
  "telemedicine": <true|false>,
  "decision_contact": {"name": "<owner or practice manager>", "title": "<title>", "email": "<email>"} or null,
  "practice_highlights": "<one or two sentences on what stands out>",
  "confidence": "<high|medium|low>"
}`

const reformatPrompt = `Your previous response was not valid against the required schema:
%s

Respond again with ONLY the JSON object, no prose, matching the schema exactly.`

// BuildPrompt assembles the extraction prompt for one listing, applying
// per-page and total character budgets.
func BuildPrompt(listing model.Listing, site *model.SiteContent) string {
	return fmt.Sprintf(extractionPrompt, listing.Name, listing.Address, renderPages(site))
}

// renderPages orders pages by extraction value and truncates each to its
// budget, stopping at the total cap.
func renderPages(site *model.SiteContent) string {
	pages := make([]model.Page, len(site.Pages))
	copy(pages, site.Pages)
	sort.SliceStable(pages, func(i, j int) bool {
		return pageRank(pages[i].Type) < pageRank(pages[j].Type)
	})

	var b strings.Builder
	remaining := totalPromptBudget
	for _, p := range pages {
		if remaining <= 0 {
			break
		}
		budget := pageBudgets[p.Type]
		if budget == 0 {
			budget = pageBudgets[crawl.PageTypeOther]
		}
		if budget > remaining {
			budget = remaining
		}

		text := p.Text
		if len(text) > budget {
			text = text[:budget]
		}
		remaining -= len(text)

		fmt.Fprintf(&b, "--- %s (%s) ---\n%s\n\n", strings.ToUpper(p.Type), p.URL, text)
	}
	return strings.TrimSpace(b.String())
}

// pageRank orders page types for prompt assembly, highest value first.
func pageRank(pageType string) int {
	switch pageType {
	case crawl.PageTypeTeam:
		return 0
	case crawl.PageTypeAbout:
		return 1
	case crawl.PageTypeHomepage:
		return 2
	case crawl.PageTypeServices:
		return 3
	case crawl.PageTypeContact:
		return 4
	default:
		return 5
	}
}
