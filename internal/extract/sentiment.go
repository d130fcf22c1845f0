package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/leadgen-cli/internal/model"
)

const reviewPrompt = `Practice: %s

Recent customer reviews:
%s

Summarize the sentiment of these reviews. Return a valid JSON object:
{
  "sentiment": "<positive|mixed|negative>",
  "themes": [<up to 5 recurring themes>],
  "summary": "<one sentence>",
  "confidence": "<high|medium|low>"
}`

const maxReviewChars = 2000

func buildReviewPrompt(listing model.Listing) string {
	var b strings.Builder
	for i, snip := range listing.ReviewSnips {
		if b.Len() >= maxReviewChars {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, clip(snip, 400))
	}
	return fmt.Sprintf(reviewPrompt, listing.Name, strings.TrimSpace(b.String()))
}

type rawInsights struct {
	Sentiment  string   `json:"sentiment"`
	Themes     []string `json:"themes"`
	Summary    string   `json:"summary"`
	Confidence string   `json:"confidence"`
}

func parseReviewInsights(raw string) (*model.ReviewInsights, error) {
	jsonText := extractJSONObject(raw)
	if jsonText == "" {
		return nil, &SchemaError{Raw: raw, Reasons: []string{"no JSON object found"}}
	}

	var ri rawInsights
	if err := json.Unmarshal([]byte(jsonText), &ri); err != nil {
		return nil, &SchemaError{Raw: raw, Reasons: []string{"invalid JSON: " + err.Error()}}
	}

	sentiment := strings.ToLower(strings.TrimSpace(ri.Sentiment))
	switch sentiment {
	case "positive", "mixed", "negative":
	default:
		return nil, &SchemaError{Raw: raw, Reasons: []string{fmt.Sprintf("sentiment %q invalid", ri.Sentiment)}}
	}

	conf := model.Confidence(strings.ToLower(strings.TrimSpace(ri.Confidence)))
	switch conf {
	case model.ConfidenceHigh, model.ConfidenceMedium, model.ConfidenceLow:
	default:
		conf = model.ConfidenceLow
	}

	if len(ri.Themes) > 5 {
		ri.Themes = ri.Themes[:5]
	}

	return &model.ReviewInsights{
		Sentiment:  sentiment,
		Themes:     ri.Themes,
		Summary:    clip(strings.TrimSpace(ri.Summary), 300),
		Confidence: conf,
	}, nil
}
