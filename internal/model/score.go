package model

// Tier buckets a scored lead for outreach prioritization.
type Tier string

const (
	TierHot        Tier = "hot"
	TierWarm       Tier = "warm"
	TierCold       Tier = "cold"
	TierOutOfScope Tier = "out_of_scope"
)

// ScoreResult is the deterministic output of the lead scorer. RawTotal is
// the pre-multiplier sum; Final is capped. Components keys are the five
// dimension names so callers can explain a score.
type ScoreResult struct {
	Components map[string]float64 `json:"components"`
	RawTotal   float64            `json:"raw_total"`
	Multiplier float64            `json:"multiplier"`
	Final      float64            `json:"final"`
	Tier       Tier               `json:"tier"`
}

// Lead pairs an enriched record with its score, ready for sync.
type Lead struct {
	Record EnrichmentRecord `json:"record"`
	Score  ScoreResult      `json:"score"`
}
