package ioc

import (
	"math"
	"strings"
	"time"

	"github.com/vantran-sec/threatsync/internal/config"
	"github.com/vantran-sec/threatsync/internal/intel"
)

// sourceTrustWeights are fixed per-source base scores. Manual entries rank
// highest, generic custom feeds lowest, the named feeds in between.
var sourceTrustWeights = map[string]int{
	"ALIENVAULT_OTX": 65,
	"CIRCL":          60,
	"URLHAUS":        78,
	"MALWAREBAZAAR":  82,
	"CUSTOM":         50,
	"MITRE_ATTACK":   88,
	"MANUAL":         95,
}

const defaultTrustWeight = 45

var severityBoosts = map[intel.Severity]int{
	intel.SeverityCritical:      12,
	intel.SeverityHigh:          8,
	intel.SeverityMedium:        4,
	intel.SeverityLow:           2,
	intel.SeverityInformational: 0,
}

// ConfidenceInput carries the signals blended into a confidence score.
type ConfidenceInput struct {
	Source                 string
	FeedProvidedConfidence *int
	FirstSeen              *time.Time
	LastSeen               *time.Time
	Severity               intel.Severity
	Now                    time.Time // zero means time.Now()
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

// CalculateConfidence blends source trust, the feed's own claim, recency,
// and severity into a 0-100 score. The feed's claim is weighted above static
// trust, while recency and severity push the score up or down independently:
// stale intel is actively penalized, so an old low-severity entry from a
// normally-trusted feed can still land in low confidence.
func CalculateConfidence(input ConfidenceInput) int {
	trustBase, ok := sourceTrustWeights[strings.ToUpper(input.Source)]
	if !ok {
		trustBase = defaultTrustWeight
	}

	feedScore := trustBase
	if input.FeedProvidedConfidence != nil {
		feedScore = clamp(*input.FeedProvidedConfidence, 0, 100)
	}

	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}

	recencyBoost := 0
	lastSeen := input.LastSeen
	if lastSeen == nil {
		lastSeen = input.FirstSeen
	}
	if lastSeen != nil {
		ageDays := now.Sub(*lastSeen).Hours() / 24
		switch {
		case ageDays <= 1:
			recencyBoost = 10
		case ageDays <= 7:
			recencyBoost = 6
		case ageDays <= 30:
			recencyBoost = 2
		default:
			recencyBoost = -8
		}
	}

	severityBoost := 0
	if input.Severity != "" {
		severityBoost = severityBoosts[input.Severity]
	}

	weighted := int(math.Round(float64(feedScore)*0.6+float64(trustBase)*0.4)) + recencyBoost + severityBoost
	return clamp(weighted, 0, 100)
}

func expirationDaysForType(indicatorType intel.IndicatorType, days config.ExpirationDays) int {
	switch indicatorType {
	case intel.TypeIPAddress:
		return days.IPAddress
	case intel.TypeDomain:
		return days.Domain
	case intel.TypeURL:
		return days.URL
	case intel.TypeFileHashMD5, intel.TypeFileHashSHA1, intel.TypeFileHashSHA256:
		return days.FileHash
	case intel.TypeCVE:
		return days.CVE
	default:
		return days.Other
	}
}

// CalculateExpiration returns the reference date advanced by the configured
// per-type time-to-live.
func CalculateExpiration(indicatorType intel.IndicatorType, reference time.Time, scoring config.ScoringConfig) time.Time {
	days := expirationDaysForType(indicatorType, scoring.DefaultExpirationDays)
	return reference.Add(time.Duration(days) * 24 * time.Hour)
}
