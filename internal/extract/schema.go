package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// Validation bounds. Values outside them mean the model hallucinated or
// misread the content, so the whole response is rejected.
const (
	maxStaffCount    = 50
	maxServices      = 10
	maxLocationCount = 50
	maxHighlightLen  = 500
	maxContactField  = 120
)

// rawExtraction mirrors the JSON the model is asked to produce. Pointers
// distinguish absent from zero.
type rawExtraction struct {
	StaffCount         *int             `json:"staff_count"`
	Services           []string         `json:"services"`
	EmergencyService   *bool            `json:"emergency_service"`
	MultiLocation      *bool            `json:"multi_location"`
	LocationCount      *int             `json:"location_count"`
	OnlineBooking      *bool            `json:"online_booking"`
	PatientPortal      *bool            `json:"patient_portal"`
	Telemedicine       *bool            `json:"telemedicine"`
	DecisionContact    *rawContact      `json:"decision_contact"`
	PracticeHighlights *string          `json:"practice_highlights"`
	Confidence         *string          `json:"confidence"`
}

type rawContact struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Email string `json:"email"`
}

// ParseExtraction decodes and validates a model response. On failure it
// returns a *SchemaError carrying the raw output and every violation found.
func ParseExtraction(raw string) (*model.Extraction, error) {
	jsonText := extractJSONObject(raw)
	if jsonText == "" {
		return nil, &SchemaError{Raw: raw, Reasons: []string{"no JSON object found"}}
	}

	var re rawExtraction
	if err := json.Unmarshal([]byte(jsonText), &re); err != nil {
		return nil, &SchemaError{Raw: raw, Reasons: []string{"invalid JSON: " + err.Error()}}
	}

	var reasons []string
	ext := &model.Extraction{}

	if re.StaffCount != nil {
		if *re.StaffCount < 1 || *re.StaffCount > maxStaffCount {
			reasons = append(reasons, fmt.Sprintf("staff_count %d out of range [1,%d]", *re.StaffCount, maxStaffCount))
		} else {
			ext.StaffCount = *re.StaffCount
		}
	}

	if len(re.Services) > maxServices {
		re.Services = re.Services[:maxServices]
	}
	for _, s := range re.Services {
		s = strings.TrimSpace(s)
		if s != "" {
			ext.Services = append(ext.Services, s)
		}
	}

	if re.EmergencyService != nil {
		ext.EmergencyService = *re.EmergencyService
	}
	if re.MultiLocation != nil {
		ext.MultiLocation = *re.MultiLocation
	}
	if re.LocationCount != nil {
		if *re.LocationCount < 0 || *re.LocationCount > maxLocationCount {
			reasons = append(reasons, fmt.Sprintf("location_count %d out of range [0,%d]", *re.LocationCount, maxLocationCount))
		} else {
			ext.LocationCount = *re.LocationCount
		}
	}
	if re.OnlineBooking != nil {
		ext.OnlineBooking = *re.OnlineBooking
	}
	if re.PatientPortal != nil {
		ext.PatientPortal = *re.PatientPortal
	}
	if re.Telemedicine != nil {
		ext.Telemedicine = *re.Telemedicine
	}

	if re.DecisionContact != nil && strings.TrimSpace(re.DecisionContact.Name) != "" {
		contact := &model.DecisionContact{
			Name:  clip(strings.TrimSpace(re.DecisionContact.Name), maxContactField),
			Title: clip(strings.TrimSpace(re.DecisionContact.Title), maxContactField),
		}
		// A contact without a plausible email is still a contact; the
		// bogus email alone is discarded.
		email := strings.TrimSpace(re.DecisionContact.Email)
		if strings.Contains(email, "@") {
			contact.Email = clip(email, maxContactField)
		}
		ext.DecisionContact = contact
	}

	if re.PracticeHighlights != nil {
		ext.PracticeHighlights = clip(strings.TrimSpace(*re.PracticeHighlights), maxHighlightLen)
	}

	if re.Confidence == nil {
		reasons = append(reasons, "confidence missing")
	} else {
		switch model.Confidence(strings.ToLower(*re.Confidence)) {
		case model.ConfidenceHigh, model.ConfidenceMedium, model.ConfidenceLow:
			ext.Confidence = model.Confidence(strings.ToLower(*re.Confidence))
		default:
			reasons = append(reasons, fmt.Sprintf("confidence %q not one of high/medium/low", *re.Confidence))
		}
	}

	if len(reasons) > 0 {
		return nil, &SchemaError{Raw: raw, Reasons: reasons}
	}
	return ext, nil
}

// extractJSONObject returns the first balanced top-level JSON object in s.
// Models occasionally wrap the object in prose or code fences.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
