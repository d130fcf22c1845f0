// Package score assigns deterministic fit scores to enriched leads. The
// scorer is a pure function of its inputs: same record and weights, same
// score, bit for bit.
package score

import (
	"strings"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// Dimension names used as Components keys.
const (
	DimPracticeSize    = "practice_size"
	DimCallVolume      = "call_volume"
	DimTechnology      = "technology"
	DimBaseline        = "baseline"
	DimDecisionContact = "decision_contact"
)

// highValueServices marks service keywords that correlate with larger
// transaction volume.
var highValueServices = []string{
	"surgery", "orthopedic", "dental", "specialty",
	"oncology", "cardiology", "imaging", "emergency",
}

// Score rates one enriched record. Missing fields contribute zero; the
// confidence multiplier discounts only enrichment-derived points, so a
// low-confidence extraction can never drag a lead below what its public
// listing alone supports.
func Score(rec model.EnrichmentRecord, w Weights) model.ScoreResult {
	listing := rec.Listing
	ext := rec.Extraction

	var listingPts, enrichPts float64
	components := make(map[string]float64, 5)

	// Practice size: entirely enrichment-derived.
	size := sizePoints(ext, w)
	components[DimPracticeSize] = size
	enrichPts += size

	// Call volume: review tiers are listing-derived, bonuses come from
	// enrichment.
	volListing := reviewTierPoints(listing.ReviewCount, w)
	volEnrich := volumeBonusPoints(ext, w)
	components[DimCallVolume] = volListing + volEnrich
	listingPts += volListing
	enrichPts += volEnrich

	// Technology adoption.
	tech := technologyPoints(ext, w)
	components[DimTechnology] = tech
	enrichPts += tech

	// Baseline quality from the listing alone.
	base := baselinePoints(listing, w)
	components[DimBaseline] = base
	listingPts += base

	// Decision contact.
	contact := contactPoints(ext, w)
	components[DimDecisionContact] = contact
	enrichPts += contact

	multiplier := confidenceMultiplier(rec, w)
	final := listingPts + enrichPts*multiplier
	if final > w.Cap {
		final = w.Cap
	}

	return model.ScoreResult{
		Components: components,
		RawTotal:   listingPts + enrichPts,
		Multiplier: multiplier,
		Final:      final,
		Tier:       tierFor(final, w),
	}
}

func sizePoints(ext *model.Extraction, w Weights) float64 {
	if ext == nil {
		return 0
	}

	var pts float64
	switch {
	case ext.StaffCount == 0:
		// unknown
	case ext.StaffCount >= w.SweetSpotMin && ext.StaffCount <= w.SweetSpotMax:
		pts = w.SizeSweetSpot
	case ext.StaffCount > w.SweetSpotMax && ext.StaffCount <= w.NearMissMax:
		pts = w.SizeNearMiss
	case ext.StaffCount < w.SweetSpotMin:
		pts = w.SizeSmall
	default:
		pts = w.SizeLarge
	}

	if ext.EmergencyService {
		pts += w.EmergencyBonus
	}
	return pts
}

func reviewTierPoints(reviewCount int, w Weights) float64 {
	switch {
	case reviewCount >= 150:
		return w.VolumeHighReviews
	case reviewCount >= 50:
		return w.VolumeMidReviews
	case reviewCount > 0:
		return w.VolumeLowReviews
	}
	return 0
}

func volumeBonusPoints(ext *model.Extraction, w Weights) float64 {
	if ext == nil {
		return 0
	}
	var pts float64
	if ext.MultiLocation {
		pts += w.MultiLocationBonus
	}
	if hasHighValueService(ext.Services) {
		pts += w.HighValueSvcBonus
	}
	return pts
}

func hasHighValueService(services []string) bool {
	for _, s := range services {
		s = strings.ToLower(s)
		for _, hv := range highValueServices {
			if strings.Contains(s, hv) {
				return true
			}
		}
	}
	return false
}

func technologyPoints(ext *model.Extraction, w Weights) float64 {
	if ext == nil {
		return 0
	}
	var pts float64
	if ext.OnlineBooking {
		pts += w.OnlineBooking
	}
	if ext.PatientPortal {
		pts += w.PatientPortal
	}
	if ext.Telemedicine {
		pts += w.Telemedicine
	}
	return pts
}

func baselinePoints(listing model.Listing, w Weights) float64 {
	var pts float64
	switch {
	case listing.Rating >= 4.5:
		pts += w.RatingExcellent
	case listing.Rating >= 4.0:
		pts += w.RatingGood
	case listing.Rating >= 3.5:
		pts += w.RatingFair
	}
	if listing.Website != "" {
		pts += w.WebsitePresent
	}
	if listing.Phone != "" {
		pts += w.PhonePresent
	}
	return pts
}

func contactPoints(ext *model.Extraction, w Weights) float64 {
	if ext == nil || ext.DecisionContact == nil || ext.DecisionContact.Name == "" {
		return 0
	}
	if ext.DecisionContact.Email != "" {
		return w.ContactNameEmail
	}
	return w.ContactName
}

func confidenceMultiplier(rec model.EnrichmentRecord, w Weights) float64 {
	if rec.Extraction == nil {
		return 1.0
	}
	switch rec.Extraction.Confidence {
	case model.ConfidenceHigh:
		return w.MultiplierHigh
	case model.ConfidenceMedium:
		return w.MultiplierMedium
	case model.ConfidenceLow:
		return w.MultiplierLow
	}
	return w.MultiplierLow
}

func tierFor(final float64, w Weights) model.Tier {
	switch {
	case final >= w.HotMin:
		return model.TierHot
	case final >= w.WarmMin:
		return model.TierWarm
	case final >= w.ColdMin:
		return model.TierCold
	}
	return model.TierOutOfScope
}
