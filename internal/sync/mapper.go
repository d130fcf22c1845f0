package sync

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jomei/notionapi"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// Property names in the leads database that the pipeline owns. Everything
// else on a page (outreach notes, assignment, manual status changes) is
// never written by the sync layer.
const (
	PropName            = "Name"
	PropPlaceID         = "Place ID"
	PropAddress         = "Address"
	PropPhone           = "Phone"
	PropWebsite         = "Website"
	PropRating          = "Rating"
	PropReviewCount     = "Review Count"
	PropScore           = "Score"
	PropTier            = "Tier"
	PropPipelineStatus  = "Pipeline Status"
	PropStaffCount      = "Staff Count"
	PropServices        = "Services"
	PropEmergency       = "Emergency Service"
	PropOnlineBooking   = "Online Booking"
	PropDecisionContact = "Decision Contact"
	PropContactEmail    = "Contact Email"
	PropHighlights      = "Highlights"
	PropReviewSentiment = "Review Sentiment"
	PropLastEnriched    = "Last Enriched"
)

// syncPayload is the canonical form of the pipeline-owned fields. The hash
// of its JSON encoding decides whether a lead changed since the last sync;
// field order is fixed by the struct, so equal payloads hash equally.
type syncPayload struct {
	Name            string   `json:"name"`
	PlaceID         string   `json:"place_id"`
	Address         string   `json:"address"`
	Phone           string   `json:"phone"`
	Website         string   `json:"website"`
	Rating          float64  `json:"rating"`
	ReviewCount     int      `json:"review_count"`
	Score           float64  `json:"score"`
	Tier            string   `json:"tier"`
	Status          string   `json:"status"`
	StaffCount      int      `json:"staff_count"`
	Services        []string `json:"services"`
	Emergency       bool     `json:"emergency"`
	OnlineBooking   bool     `json:"online_booking"`
	ContactName     string   `json:"contact_name"`
	ContactTitle    string   `json:"contact_title"`
	ContactEmail    string   `json:"contact_email"`
	Highlights      string   `json:"highlights"`
	ReviewSentiment string   `json:"review_sentiment"`
}

func payloadFor(lead model.Lead) syncPayload {
	rec := lead.Record
	p := syncPayload{
		Name:        rec.Listing.Name,
		PlaceID:     rec.Listing.PlaceID,
		Address:     rec.Listing.Address,
		Phone:       rec.Listing.Phone,
		Website:     rec.Listing.Website,
		Rating:      rec.Listing.Rating,
		ReviewCount: rec.Listing.ReviewCount,
		Score:       lead.Score.Final,
		Tier:        string(lead.Score.Tier),
		Status:      string(rec.Status),
	}
	if ext := rec.Extraction; ext != nil {
		p.StaffCount = ext.StaffCount
		p.Services = ext.Services
		p.Emergency = ext.EmergencyService
		p.OnlineBooking = ext.OnlineBooking
		p.Highlights = ext.PracticeHighlights
		if ext.DecisionContact != nil {
			p.ContactName = ext.DecisionContact.Name
			p.ContactTitle = ext.DecisionContact.Title
			p.ContactEmail = ext.DecisionContact.Email
		}
	}
	if rec.ReviewInsights != nil {
		p.ReviewSentiment = rec.ReviewInsights.Sentiment
	}
	return p
}

// PayloadHash fingerprints the pipeline-owned fields of a lead. Leads whose
// hash matches the stored sync state are skipped without an API call.
func PayloadHash(lead model.Lead) uint64 {
	data, err := json.Marshal(payloadFor(lead))
	if err != nil {
		// syncPayload contains only marshal-safe types.
		return 0
	}
	return xxhash.Sum64(data)
}

// BuildProperties maps a lead onto the pipeline-owned Notion properties.
func BuildProperties(lead model.Lead) notionapi.Properties {
	p := payloadFor(lead)
	props := make(notionapi.Properties)

	props[PropName] = notionapi.TitleProperty{
		Type: notionapi.PropertyTypeTitle,
		Title: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: p.Name}},
		},
	}
	props[PropPlaceID] = richText(p.PlaceID)
	props[PropAddress] = richText(p.Address)
	props[PropPhone] = notionapi.PhoneNumberProperty{
		Type:        notionapi.PropertyTypePhoneNumber,
		PhoneNumber: p.Phone,
	}
	if p.Website != "" {
		props[PropWebsite] = notionapi.URLProperty{
			Type: notionapi.PropertyTypeURL,
			URL:  p.Website,
		}
	}
	props[PropRating] = number(p.Rating)
	props[PropReviewCount] = number(float64(p.ReviewCount))
	props[PropScore] = number(p.Score)
	props[PropTier] = selectOpt(tierLabel(lead.Score.Tier))
	props[PropPipelineStatus] = selectOpt(statusLabel(lead.Record.Status))

	if p.StaffCount > 0 {
		props[PropStaffCount] = number(float64(p.StaffCount))
	}
	if len(p.Services) > 0 {
		opts := make([]notionapi.Option, 0, len(p.Services))
		for _, s := range p.Services {
			opts = append(opts, notionapi.Option{Name: s})
		}
		props[PropServices] = notionapi.MultiSelectProperty{
			Type:        notionapi.PropertyTypeMultiSelect,
			MultiSelect: opts,
		}
	}
	props[PropEmergency] = checkbox(p.Emergency)
	props[PropOnlineBooking] = checkbox(p.OnlineBooking)

	if p.ContactName != "" {
		contact := p.ContactName
		if p.ContactTitle != "" {
			contact += " (" + p.ContactTitle + ")"
		}
		props[PropDecisionContact] = richText(contact)
	}
	if p.ContactEmail != "" {
		props[PropContactEmail] = notionapi.EmailProperty{
			Type:  notionapi.PropertyTypeEmail,
			Email: p.ContactEmail,
		}
	}
	if p.Highlights != "" {
		props[PropHighlights] = richText(p.Highlights)
	}
	if p.ReviewSentiment != "" {
		props[PropReviewSentiment] = selectOpt(titleCase(p.ReviewSentiment))
	}

	enriched := notionapi.Date(lead.Record.EnrichedAt)
	if lead.Record.EnrichedAt.IsZero() {
		enriched = notionapi.Date(time.Now().UTC())
	}
	props[PropLastEnriched] = notionapi.DateProperty{
		Type: notionapi.PropertyTypeDate,
		Date: &notionapi.DateObject{Start: &enriched},
	}

	return props
}

func richText(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
		},
	}
}

func number(n float64) notionapi.NumberProperty {
	return notionapi.NumberProperty{
		Type:   notionapi.PropertyTypeNumber,
		Number: n,
	}
}

func checkbox(v bool) notionapi.CheckboxProperty {
	return notionapi.CheckboxProperty{
		Type:     notionapi.PropertyTypeCheckbox,
		Checkbox: v,
	}
}

func selectOpt(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{
		Type:   notionapi.PropertyTypeSelect,
		Select: notionapi.Option{Name: name},
	}
}

func tierLabel(t model.Tier) string {
	switch t {
	case model.TierHot:
		return "Hot"
	case model.TierWarm:
		return "Warm"
	case model.TierCold:
		return "Cold"
	}
	return "Out of Scope"
}

func statusLabel(s model.RecordStatus) string {
	switch s {
	case model.StatusSuccess:
		return "Enriched"
	case model.StatusPartial:
		return "Partially Enriched"
	}
	return "Listing Only"
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
