package ioc

import (
	"testing"
	"time"

	"github.com/vantran-sec/threatsync/internal/config"
	"github.com/vantran-sec/threatsync/internal/intel"
)

var scoringNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func hoursAgo(h int) *time.Time {
	ts := scoringNow.Add(-time.Duration(h) * time.Hour)
	return &ts
}

// ============================================================================
// CalculateConfidence
// ============================================================================

// TestConfidenceSourceTrust scores sources by their fixed trust weight when
// the feed claims nothing.
func TestConfidenceSourceTrust(t *testing.T) {
	cases := []struct {
		source string
		want   int
	}{
		// trust*0.6 + trust*0.4 + recency 10 (seen today)
		{"MANUAL", 100}, // 95+10 clamped
		{"MALWAREBAZAAR", 92},
		{"URLHAUS", 88},
		{"ALIENVAULT_OTX", 75},
		{"CIRCL", 70},
		{"CUSTOM", 60},
		{"SOMETHING_NEW", 55}, // default trust 45
	}

	for _, tc := range cases {
		got := CalculateConfidence(ConfidenceInput{
			Source:   tc.source,
			LastSeen: hoursAgo(1),
			Now:      scoringNow,
		})
		if got != tc.want {
			t.Errorf("CalculateConfidence(%s) = %d, want %d", tc.source, got, tc.want)
		}
	}
}

// TestConfidenceBlendsFeedClaim weights the feed's own confidence above the
// static trust base.
func TestConfidenceBlendsFeedClaim(t *testing.T) {
	claim := 100
	got := CalculateConfidence(ConfidenceInput{
		Source:                 "CUSTOM", // trust 50
		FeedProvidedConfidence: &claim,
		LastSeen:               hoursAgo(1),
		Now:                    scoringNow,
	})
	// 100*0.6 + 50*0.4 + 10
	if got != 90 {
		t.Errorf("confidence = %d, want 90", got)
	}

	overclaim := 500
	clamped := CalculateConfidence(ConfidenceInput{
		Source:                 "CUSTOM",
		FeedProvidedConfidence: &overclaim,
		LastSeen:               hoursAgo(1),
		Now:                    scoringNow,
	})
	if clamped != 90 {
		t.Errorf("confidence with out-of-range claim = %d, want 90", clamped)
	}
}

// TestConfidenceRecency rewards fresh sightings and penalizes stale ones.
func TestConfidenceRecency(t *testing.T) {
	cases := []struct {
		age  time.Duration
		want int
	}{
		{12 * time.Hour, 60},       // +10
		{3 * 24 * time.Hour, 56},   // +6
		{20 * 24 * time.Hour, 52},  // +2
		{100 * 24 * time.Hour, 42}, // -8
	}

	for _, tc := range cases {
		seen := scoringNow.Add(-tc.age)
		got := CalculateConfidence(ConfidenceInput{
			Source:   "CUSTOM",
			LastSeen: &seen,
			Now:      scoringNow,
		})
		if got != tc.want {
			t.Errorf("confidence at age %v = %d, want %d", tc.age, got, tc.want)
		}
	}

	// Without any sighting there is no recency signal either way.
	if got := CalculateConfidence(ConfidenceInput{Source: "CUSTOM", Now: scoringNow}); got != 50 {
		t.Errorf("confidence with no sightings = %d, want 50", got)
	}
}

// TestConfidenceFallsBackToFirstSeen uses FirstSeen when LastSeen is absent.
func TestConfidenceFallsBackToFirstSeen(t *testing.T) {
	got := CalculateConfidence(ConfidenceInput{
		Source:    "CUSTOM",
		FirstSeen: hoursAgo(2),
		Now:       scoringNow,
	})
	if got != 60 {
		t.Errorf("confidence = %d, want 60", got)
	}
}

// TestConfidenceSeverityBoost adds the per-severity bump.
func TestConfidenceSeverityBoost(t *testing.T) {
	cases := []struct {
		severity intel.Severity
		want     int
	}{
		{intel.SeverityCritical, 72},
		{intel.SeverityHigh, 68},
		{intel.SeverityMedium, 64},
		{intel.SeverityLow, 62},
		{intel.SeverityInformational, 60},
		{"", 60},
	}

	for _, tc := range cases {
		got := CalculateConfidence(ConfidenceInput{
			Source:   "CUSTOM",
			Severity: tc.severity,
			LastSeen: hoursAgo(1),
			Now:      scoringNow,
		})
		if got != tc.want {
			t.Errorf("confidence with severity %q = %d, want %d", tc.severity, got, tc.want)
		}
	}
}

// TestConfidenceBounds stays inside 0-100 at the extremes.
func TestConfidenceBounds(t *testing.T) {
	high := CalculateConfidence(ConfidenceInput{
		Source:   "MANUAL",
		Severity: intel.SeverityCritical,
		LastSeen: hoursAgo(1),
		Now:      scoringNow,
	})
	if high != 100 {
		t.Errorf("high-end confidence = %d, want 100", high)
	}

	zero := 0
	low := CalculateConfidence(ConfidenceInput{
		Source:                 "SOMETHING_NEW",
		FeedProvidedConfidence: &zero,
		LastSeen:               hoursAgo(365 * 24),
		Now:                    scoringNow,
	})
	if low < 0 || low > 100 {
		t.Errorf("low-end confidence = %d, out of bounds", low)
	}
}

// ============================================================================
// CalculateExpiration
// ============================================================================

// TestCalculateExpiration applies the per-type time-to-live.
func TestCalculateExpiration(t *testing.T) {
	scoring := config.DefaultConfig().Scoring

	cases := []struct {
		typ  intel.IndicatorType
		days int
	}{
		{intel.TypeIPAddress, 14},
		{intel.TypeDomain, 30},
		{intel.TypeURL, 7},
		{intel.TypeFileHashMD5, 120},
		{intel.TypeFileHashSHA256, 120},
		{intel.TypeCVE, 365},
		{intel.TypeUserAgent, 30},
	}

	for _, tc := range cases {
		want := scoringNow.Add(time.Duration(tc.days) * 24 * time.Hour)
		if got := CalculateExpiration(tc.typ, scoringNow, scoring); !got.Equal(want) {
			t.Errorf("CalculateExpiration(%s) = %v, want %v", tc.typ, got, want)
		}
	}
}
