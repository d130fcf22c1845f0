package score

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Weights is the injected scoring table. Every point value the scorer
// awards lives here so the model can be tuned without a code change.
type Weights struct {
	// Practice size (enrichment-derived).
	SizeSweetSpot    float64 `yaml:"size_sweet_spot"`     // staff within [SweetSpotMin, SweetSpotMax]
	SizeNearMiss     float64 `yaml:"size_near_miss"`      // just above the sweet spot
	SizeSmall        float64 `yaml:"size_small"`          // 1-2 staff
	SizeLarge        float64 `yaml:"size_large"`          // beyond near-miss range
	SweetSpotMin     int     `yaml:"sweet_spot_min"`
	SweetSpotMax     int     `yaml:"sweet_spot_max"`
	NearMissMax      int     `yaml:"near_miss_max"`
	EmergencyBonus   float64 `yaml:"emergency_bonus"`

	// Call volume. Review tiers are listing-derived; the bonuses come
	// from enrichment.
	VolumeHighReviews   float64 `yaml:"volume_high_reviews"` // 150+
	VolumeMidReviews    float64 `yaml:"volume_mid_reviews"`  // 50+
	VolumeLowReviews    float64 `yaml:"volume_low_reviews"`  // 1+
	MultiLocationBonus  float64 `yaml:"multi_location_bonus"`
	HighValueSvcBonus   float64 `yaml:"high_value_svc_bonus"`

	// Technology (enrichment-derived).
	OnlineBooking float64 `yaml:"online_booking"`
	PatientPortal float64 `yaml:"patient_portal"`
	Telemedicine  float64 `yaml:"telemedicine"`

	// Baseline (listing-derived, never discounted).
	RatingExcellent float64 `yaml:"rating_excellent"` // 4.5+
	RatingGood      float64 `yaml:"rating_good"`      // 4.0+
	RatingFair      float64 `yaml:"rating_fair"`      // 3.5+
	WebsitePresent  float64 `yaml:"website_present"`
	PhonePresent    float64 `yaml:"phone_present"`

	// Decision contact (enrichment-derived).
	ContactName      float64 `yaml:"contact_name"`
	ContactNameEmail float64 `yaml:"contact_name_email"`

	// Confidence multipliers for enrichment-derived points.
	MultiplierHigh   float64 `yaml:"multiplier_high"`
	MultiplierMedium float64 `yaml:"multiplier_medium"`
	MultiplierLow    float64 `yaml:"multiplier_low"`

	// Final score cap and tier thresholds.
	Cap      float64 `yaml:"cap"`
	HotMin   float64 `yaml:"hot_min"`
	WarmMin  float64 `yaml:"warm_min"`
	ColdMin  float64 `yaml:"cold_min"`
}

// DefaultWeights returns the standard scoring table (0-120 scale).
func DefaultWeights() Weights {
	return Weights{
		SizeSweetSpot:  25,
		SizeNearMiss:   15,
		SizeSmall:      10,
		SizeLarge:      5,
		SweetSpotMin:   3,
		SweetSpotMax:   8,
		NearMissMax:    12,
		EmergencyBonus: 15,

		VolumeHighReviews:  20,
		VolumeMidReviews:   12,
		VolumeLowReviews:   5,
		MultiLocationBonus: 10,
		HighValueSvcBonus:  10,

		OnlineBooking: 10,
		PatientPortal: 5,
		Telemedicine:  5,

		RatingExcellent: 10,
		RatingGood:      6,
		RatingFair:      3,
		WebsitePresent:  6,
		PhonePresent:    4,

		ContactName:      6,
		ContactNameEmail: 10,

		MultiplierHigh:   1.0,
		MultiplierMedium: 0.9,
		MultiplierLow:    0.7,

		Cap:     120,
		HotMin:  80,
		WarmMin: 50,
		ColdMin: 20,
	}
}

// LoadWeights reads a weights table from a YAML file, falling back to
// defaults for the file path being empty.
func LoadWeights(path string) (Weights, error) {
	if path == "" {
		return DefaultWeights(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Weights{}, eris.Wrap(err, "score: read weights file")
	}

	w := DefaultWeights()
	if err := yaml.Unmarshal(data, &w); err != nil {
		return Weights{}, eris.Wrap(err, "score: parse weights file")
	}
	if err := w.Validate(); err != nil {
		return Weights{}, err
	}
	return w, nil
}

// Validate rejects tables that would break scoring invariants.
func (w Weights) Validate() error {
	if w.Cap <= 0 {
		return eris.New("score: cap must be positive")
	}
	if !(w.HotMin > w.WarmMin && w.WarmMin > w.ColdMin && w.ColdMin > 0) {
		return eris.New("score: tier thresholds must descend hot > warm > cold > 0")
	}
	if w.SweetSpotMin < 1 || w.SweetSpotMax < w.SweetSpotMin || w.NearMissMax < w.SweetSpotMax {
		return eris.New("score: staff bands must be ordered")
	}
	for _, m := range []float64{w.MultiplierHigh, w.MultiplierMedium, w.MultiplierLow} {
		if m <= 0 || m > 1 {
			return eris.New("score: multipliers must be in (0,1]")
		}
	}
	return nil
}
