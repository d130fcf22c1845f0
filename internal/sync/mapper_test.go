package sync

import (
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/model"
)

func TestBuildProperties_FullLead(t *testing.T) {
	props := BuildProperties(testLead("p1", 92.5))

	title, ok := props[PropName].(notionapi.TitleProperty)
	require.True(t, ok)
	assert.Equal(t, "Lakeside Vets", title.Title[0].Text.Content)

	placeID, ok := props[PropPlaceID].(notionapi.RichTextProperty)
	require.True(t, ok)
	assert.Equal(t, "p1", placeID.RichText[0].Text.Content)

	score, ok := props[PropScore].(notionapi.NumberProperty)
	require.True(t, ok)
	assert.Equal(t, 92.5, score.Number)

	tier, ok := props[PropTier].(notionapi.SelectProperty)
	require.True(t, ok)
	assert.Equal(t, "Hot", tier.Select.Name)

	status, ok := props[PropPipelineStatus].(notionapi.SelectProperty)
	require.True(t, ok)
	assert.Equal(t, "Enriched", status.Select.Name)

	services, ok := props[PropServices].(notionapi.MultiSelectProperty)
	require.True(t, ok)
	assert.Len(t, services.MultiSelect, 2)

	contact, ok := props[PropDecisionContact].(notionapi.RichTextProperty)
	require.True(t, ok)
	assert.Equal(t, "Dr. Reyes (Owner)", contact.RichText[0].Text.Content)

	email, ok := props[PropContactEmail].(notionapi.EmailProperty)
	require.True(t, ok)
	assert.Equal(t, "reyes@lakeside.example", email.Email)

	emergency, ok := props[PropEmergency].(notionapi.CheckboxProperty)
	require.True(t, ok)
	assert.True(t, emergency.Checkbox)

	_, ok = props[PropLastEnriched].(notionapi.DateProperty)
	assert.True(t, ok)
}

func TestBuildProperties_ListingOnlyLead(t *testing.T) {
	lead := testLead("p1", 35)
	lead.Record.Extraction = nil
	lead.Record.Status = model.StatusPartial
	lead.Score.Tier = model.TierCold

	props := BuildProperties(lead)

	status := props[PropPipelineStatus].(notionapi.SelectProperty)
	assert.Equal(t, "Partially Enriched", status.Select.Name)

	tier := props[PropTier].(notionapi.SelectProperty)
	assert.Equal(t, "Cold", tier.Select.Name)

	// Optional enrichment properties are omitted, not zeroed.
	_, hasStaff := props[PropStaffCount]
	assert.False(t, hasStaff)
	_, hasServices := props[PropServices]
	assert.False(t, hasServices)
	_, hasContact := props[PropDecisionContact]
	assert.False(t, hasContact)
}

func TestBuildProperties_EmptyWebsiteOmitted(t *testing.T) {
	lead := testLead("p1", 50)
	lead.Record.Listing.Website = ""

	props := BuildProperties(lead)
	_, ok := props[PropWebsite]
	assert.False(t, ok)
}

func TestTierLabels(t *testing.T) {
	assert.Equal(t, "Hot", tierLabel(model.TierHot))
	assert.Equal(t, "Warm", tierLabel(model.TierWarm))
	assert.Equal(t, "Cold", tierLabel(model.TierCold))
	assert.Equal(t, "Out of Scope", tierLabel(model.TierOutOfScope))
}
