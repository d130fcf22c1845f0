package model

// Listing is one candidate practice from the directory source. Listings are
// immutable once the collector emits them; PlaceID is the stable lookup key
// everywhere downstream (dedupe, sync state, remote record matching).
type Listing struct {
	PlaceID       string         `json:"place_id"`
	Name          string         `json:"name"`
	Address       string         `json:"address"`
	Phone         string         `json:"phone,omitempty"`
	Website       string         `json:"website,omitempty"`
	Rating        float64        `json:"rating"`
	ReviewCount   int            `json:"review_count"`
	Categories    []string       `json:"categories,omitempty"`
	ReviewSnips   []string       `json:"review_snips,omitempty"`
	RawAttributes map[string]any `json:"raw_attributes,omitempty"`
	BaselineScore int            `json:"baseline_score"`
	Admitted      bool           `json:"admitted"`
}

// Page is a single fetched page of a listing's website.
type Page struct {
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	Type       string `json:"type"` // homepage, team, about, services, contact, other
	Text       string `json:"text"`
	StatusCode int    `json:"status_code"`
}

// SiteContent is the rendered result of crawling a listing's website.
type SiteContent struct {
	URL       string `json:"url"` // normalized site URL
	Pages     []Page `json:"pages"`
	FromCache bool   `json:"from_cache"`
}
