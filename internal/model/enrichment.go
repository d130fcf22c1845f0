package model

import "time"

// RecordStatus represents the terminal (or in-flight) state of a listing
// as it moves through the enrichment pipeline.
type RecordStatus string

const (
	StatusPending    RecordStatus = "pending"
	StatusCrawling   RecordStatus = "crawling"
	StatusExtracting RecordStatus = "extracting"
	StatusSuccess    RecordStatus = "success"
	StatusPartial    RecordStatus = "partial"
	StatusFailed     RecordStatus = "failed"
)

// Confidence is the extractor's self-reported confidence in its output.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// DecisionContact is a named decision-maker found on the practice website.
type DecisionContact struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
	Email string `json:"email,omitempty"`
}

// ReviewInsights is an optional LLM-derived summary of review sentiment.
type ReviewInsights struct {
	Sentiment  string     `json:"sentiment"` // positive, mixed, negative
	Themes     []string   `json:"themes,omitempty"`
	Summary    string     `json:"summary,omitempty"`
	Confidence Confidence `json:"confidence"`
}

// Extraction holds the structured fields the LLM pulled from a crawled site.
// All fields are optional; absent fields contribute nothing to scoring.
type Extraction struct {
	StaffCount         int              `json:"staff_count,omitempty"` // veterinarians on staff, 1-50
	Services           []string         `json:"services,omitempty"`
	EmergencyService   bool             `json:"emergency_service"`
	MultiLocation      bool             `json:"multi_location"`
	LocationCount      int              `json:"location_count,omitempty"`
	OnlineBooking      bool             `json:"online_booking"`
	PatientPortal      bool             `json:"patient_portal"`
	Telemedicine       bool             `json:"telemedicine"`
	DecisionContact    *DecisionContact `json:"decision_contact,omitempty"`
	PracticeHighlights string           `json:"practice_highlights,omitempty"`
	Confidence         Confidence       `json:"confidence"`
}

// EnrichmentRecord is one listing's full pipeline outcome: the listing, the
// extraction (nil on failure or schema rejection), status and bookkeeping.
type EnrichmentRecord struct {
	Listing        Listing         `json:"listing"`
	Site           *SiteContent    `json:"-"`
	Extraction     *Extraction     `json:"extraction,omitempty"`
	ReviewInsights *ReviewInsights `json:"review_insights,omitempty"`
	Status         RecordStatus    `json:"status"`
	ErrorNote      string          `json:"error_note,omitempty"`
	CostUSD        float64         `json:"cost_usd"`
	EnrichedAt     time.Time       `json:"enriched_at"`
}

// Terminal reports whether the record has reached a final status.
func (r *EnrichmentRecord) Terminal() bool {
	switch r.Status {
	case StatusSuccess, StatusPartial, StatusFailed:
		return true
	}
	return false
}
