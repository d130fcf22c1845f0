package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/model"
)

const validJSON = `{
  "staff_count": 4,
  "services": ["surgery", "dental", "emergency"],
  "emergency_service": true,
  "multi_location": false,
  "location_count": 1,
  "online_booking": true,
  "patient_portal": false,
  "telemedicine": false,
  "decision_contact": {"name": "Dr. Jane Reyes", "title": "Owner", "email": "jane@lakesidevets.com"},
  "practice_highlights": "Full-service hospital with 24/7 emergency care.",
  "confidence": "high"
}`

func TestParseExtraction_Valid(t *testing.T) {
	ext, err := ParseExtraction(validJSON)
	require.NoError(t, err)

	assert.Equal(t, 4, ext.StaffCount)
	assert.Equal(t, []string{"surgery", "dental", "emergency"}, ext.Services)
	assert.True(t, ext.EmergencyService)
	assert.True(t, ext.OnlineBooking)
	require.NotNil(t, ext.DecisionContact)
	assert.Equal(t, "Dr. Jane Reyes", ext.DecisionContact.Name)
	assert.Equal(t, "jane@lakesidevets.com", ext.DecisionContact.Email)
	assert.Equal(t, model.ConfidenceHigh, ext.Confidence)
}

func TestParseExtraction_WrappedInProse(t *testing.T) {
	raw := "Here is the extraction:\n```json\n" + validJSON + "\n```\nDone."
	ext, err := ParseExtraction(raw)
	require.NoError(t, err)
	assert.Equal(t, 4, ext.StaffCount)
}

func TestParseExtraction_NullsAreAbsent(t *testing.T) {
	ext, err := ParseExtraction(`{"staff_count": null, "confidence": "low"}`)
	require.NoError(t, err)
	assert.Equal(t, 0, ext.StaffCount)
	assert.Nil(t, ext.DecisionContact)
	assert.Equal(t, model.ConfidenceLow, ext.Confidence)
}

func TestParseExtraction_StaffCountOutOfRange(t *testing.T) {
	for _, raw := range []string{
		`{"staff_count": 0, "confidence": "high"}`,
		`{"staff_count": 51, "confidence": "high"}`,
		`{"staff_count": -3, "confidence": "high"}`,
	} {
		_, err := ParseExtraction(raw)
		var se *SchemaError
		require.ErrorAs(t, err, &se, "input: %s", raw)
		assert.Equal(t, raw, se.Raw)
	}
}

func TestParseExtraction_ConfidenceRequired(t *testing.T) {
	_, err := ParseExtraction(`{"staff_count": 3}`)
	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Reasons[0], "confidence")
}

func TestParseExtraction_ConfidenceInvalid(t *testing.T) {
	_, err := ParseExtraction(`{"confidence": "very high"}`)
	var se *SchemaError
	require.ErrorAs(t, err, &se)
}

func TestParseExtraction_ConfidenceCaseInsensitive(t *testing.T) {
	ext, err := ParseExtraction(`{"confidence": "Medium"}`)
	require.NoError(t, err)
	assert.Equal(t, model.ConfidenceMedium, ext.Confidence)
}

func TestParseExtraction_BogusEmailDiscarded(t *testing.T) {
	ext, err := ParseExtraction(`{
		"decision_contact": {"name": "Dr. Smith", "email": "call the front desk"},
		"confidence": "medium"
	}`)
	require.NoError(t, err)
	require.NotNil(t, ext.DecisionContact)
	assert.Equal(t, "Dr. Smith", ext.DecisionContact.Name)
	assert.Empty(t, ext.DecisionContact.Email)
}

func TestParseExtraction_ServicesCapped(t *testing.T) {
	raw := `{"services": ["a","b","c","d","e","f","g","h","i","j","k","l"], "confidence": "high"}`
	ext, err := ParseExtraction(raw)
	require.NoError(t, err)
	assert.Len(t, ext.Services, maxServices)
}

func TestParseExtraction_NotJSON(t *testing.T) {
	_, err := ParseExtraction("I could not find any information on this website.")
	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Reasons[0], "no JSON object")
}

func TestParseExtraction_MalformedJSON(t *testing.T) {
	_, err := ParseExtraction(`{"staff_count": 4,`)
	var se *SchemaError
	assert.True(t, errors.As(err, &se))
}

func TestExtractJSONObject_NestedBraces(t *testing.T) {
	raw := `prefix {"a": {"b": "}"}, "c": 1} suffix`
	got := extractJSONObject(raw)
	assert.Equal(t, `{"a": {"b": "}"}, "c": 1}`, got)
}

func TestParseReviewInsights_Valid(t *testing.T) {
	ri, err := parseReviewInsights(`{
		"sentiment": "positive",
		"themes": ["friendly staff", "clean facility"],
		"summary": "Clients consistently praise the staff.",
		"confidence": "high"
	}`)
	require.NoError(t, err)
	assert.Equal(t, "positive", ri.Sentiment)
	assert.Len(t, ri.Themes, 2)
	assert.Equal(t, model.ConfidenceHigh, ri.Confidence)
}

func TestParseReviewInsights_BadSentiment(t *testing.T) {
	_, err := parseReviewInsights(`{"sentiment": "amazing", "confidence": "high"}`)
	var se *SchemaError
	assert.True(t, errors.As(err, &se))
}
