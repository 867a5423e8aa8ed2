package correlation

import (
	"context"
	"testing"
	"time"

	"github.com/vantran-sec/threatsync/internal/config"
	"github.com/vantran-sec/threatsync/internal/intel"
	"github.com/vantran-sec/threatsync/internal/store"
)

const testOrg = "org-1"

func intPtr(v int) *int { return &v }

func seedEngine(t *testing.T) (*store.MemoryStore, *Engine) {
	t.Helper()
	repo := store.NewMemoryStore()
	return repo, NewEngine(config.DefaultConfig(), repo, nil)
}

func ingestIndicator(t *testing.T, repo *store.MemoryStore, typ intel.IndicatorType, value string, confidence int) *intel.ThreatIndicator {
	t.Helper()
	now := time.Now().UTC()
	result, err := repo.UpsertIndicator(context.Background(), testOrg, "feed-1", intel.NormalizedIndicator{
		Type:            typ,
		Value:           value,
		NormalizedValue: value,
		Confidence:      intPtr(confidence),
		Severity:        intel.SeverityHigh,
		FirstSeen:       now,
		LastSeen:        now,
		Source:          "URLHAUS",
	})
	if err != nil {
		t.Fatalf("seeding indicator: %v", err)
	}
	return result.Row
}

// ============================================================================
// Matching
// ============================================================================

// TestRunMatchesAssetIPAddress verifies an indicator colliding with exactly
// one asset's ipAddress produces exactly one match on that field.
func TestRunMatchesAssetIPAddress(t *testing.T) {
	repo, engine := seedEngine(t)
	ingestIndicator(t, repo, intel.TypeIPAddress, "203.0.113.7", 50)
	repo.AddAsset(testOrg, &intel.Asset{Name: "web-01", IPAddress: "203.0.113.7", Hostname: "web-01.internal"})
	repo.AddAsset(testOrg, &intel.Asset{Name: "db-01", IPAddress: "10.0.4.2"})

	summary, err := engine.Run(context.Background(), testOrg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.ScannedIndicators != 1 || summary.ScannedAssets != 2 {
		t.Errorf("scanned = %+v", summary)
	}
	if summary.MatchesCreated != 1 {
		t.Fatalf("matches created = %d, want 1", summary.MatchesCreated)
	}

	matches, _ := repo.ListIndicatorMatches(context.Background(), testOrg)
	if len(matches) != 1 {
		t.Fatalf("stored matches = %d, want 1", len(matches))
	}
	if matches[0].MatchField != "ipAddress" || matches[0].MatchValue != "203.0.113.7" {
		t.Errorf("match = %+v", matches[0])
	}
	if matches[0].Status != intel.MatchStatusActive {
		t.Errorf("status = %s, want ACTIVE", matches[0].Status)
	}
}

// TestRunNormalizesBeforeComparing verifies a domain indicator matches a
// hostname that differs only in case.
func TestRunNormalizesBeforeComparing(t *testing.T) {
	repo, engine := seedEngine(t)
	ingestIndicator(t, repo, intel.TypeDomain, "evil.example", 50)
	repo.AddAsset(testOrg, &intel.Asset{Name: "gw-01", Hostname: "EVIL.Example"})

	summary, err := engine.Run(context.Background(), testOrg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.MatchesCreated != 1 {
		t.Fatalf("matches created = %d, want 1", summary.MatchesCreated)
	}
	matches, _ := repo.ListIndicatorMatches(context.Background(), testOrg)
	if matches[0].MatchField != "hostname" {
		t.Errorf("field = %s, want hostname", matches[0].MatchField)
	}
}

// TestRunWalksMetadata verifies values nested inside asset metadata are
// candidates, recorded under the flat metadata field.
func TestRunWalksMetadata(t *testing.T) {
	repo, engine := seedEngine(t)
	ingestIndicator(t, repo, intel.TypeIPAddress, "198.51.100.9", 50)
	repo.AddAsset(testOrg, &intel.Asset{
		Name: "fw-01",
		Metadata: map[string]any{
			"interfaces": []any{
				map[string]any{"wan": "198.51.100.9"},
			},
		},
	})

	summary, err := engine.Run(context.Background(), testOrg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.MatchesCreated != 1 {
		t.Fatalf("matches created = %d, want 1", summary.MatchesCreated)
	}
	matches, _ := repo.ListIndicatorMatches(context.Background(), testOrg)
	if matches[0].MatchField != "metadata" {
		t.Errorf("field = %s, want metadata", matches[0].MatchField)
	}
	if matches[0].MatchValue != "198.51.100.9" {
		t.Errorf("value = %s, want 198.51.100.9", matches[0].MatchValue)
	}
}

// TestRunMetadataReshapeRefreshesMatch verifies that moving a value to a
// different spot in the metadata document refreshes the existing match
// instead of minting a new row and re-alerting.
func TestRunMetadataReshapeRefreshesMatch(t *testing.T) {
	repo, engine := seedEngine(t)
	ingestIndicator(t, repo, intel.TypeUserAgent, "EvilBot/1.0", 90)
	asset := &intel.Asset{
		ID:       "asset-ua",
		Name:     "proxy-01",
		Metadata: map[string]any{"ua": "EvilBot/1.0"},
	}
	repo.AddAsset(testOrg, asset)
	repo.AddUser(testOrg, "u-1", "ANALYST")

	first, err := engine.Run(context.Background(), testOrg)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.MatchesCreated != 1 || first.AlertsGenerated != 1 {
		t.Fatalf("first pass = %+v", first)
	}

	asset.Metadata = map[string]any{"clients": []any{"EvilBot/1.0"}}

	second, err := engine.Run(context.Background(), testOrg)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.MatchesCreated != 0 || second.MatchesUpdated != 1 {
		t.Errorf("second pass = %+v, want one update", second)
	}
	if second.AlertsGenerated != 0 {
		t.Errorf("second pass alerts = %d, want 0", second.AlertsGenerated)
	}
	matches, _ := repo.ListIndicatorMatches(context.Background(), testOrg)
	if len(matches) != 1 {
		t.Errorf("stored matches = %d, want 1", len(matches))
	}
}

// TestRunCasePreservingTypesCompareExactly verifies types whose normalization
// keeps case (user agents, registry keys) only match on the exact value.
func TestRunCasePreservingTypesCompareExactly(t *testing.T) {
	repo, engine := seedEngine(t)
	ingestIndicator(t, repo, intel.TypeUserAgent, "Mozilla/5.0 EvilBot", 50)
	repo.AddAsset(testOrg, &intel.Asset{
		Name:     "proxy-01",
		Metadata: map[string]any{"ua": "mozilla/5.0 evilbot"},
	})

	summary, err := engine.Run(context.Background(), testOrg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.MatchesCreated != 0 {
		t.Fatalf("matches created = %d, want 0 for a case mismatch", summary.MatchesCreated)
	}

	repo.AddAsset(testOrg, &intel.Asset{
		Name:     "proxy-02",
		Metadata: map[string]any{"ua": "Mozilla/5.0 EvilBot"},
	})
	summary, err = engine.Run(context.Background(), testOrg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.MatchesCreated != 1 {
		t.Errorf("matches created = %d, want 1 for the exact value", summary.MatchesCreated)
	}
}

// TestRunSecondPassUpdates verifies a repeated pass refreshes the existing
// match instead of creating a duplicate, and does not re-alert.
func TestRunSecondPassUpdates(t *testing.T) {
	repo, engine := seedEngine(t)
	ingestIndicator(t, repo, intel.TypeIPAddress, "203.0.113.7", 90)
	repo.AddAsset(testOrg, &intel.Asset{Name: "web-01", IPAddress: "203.0.113.7"})
	repo.AddUser(testOrg, "u-1", "ANALYST")

	first, err := engine.Run(context.Background(), testOrg)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.MatchesCreated != 1 || first.AlertsGenerated != 1 {
		t.Fatalf("first pass = %+v", first)
	}

	second, err := engine.Run(context.Background(), testOrg)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.MatchesCreated != 0 || second.MatchesUpdated != 1 {
		t.Errorf("second pass = %+v, want one update", second)
	}
	if second.AlertsGenerated != 0 {
		t.Errorf("second pass alerts = %d, want 0", second.AlertsGenerated)
	}
}

// ============================================================================
// Alerting
// ============================================================================

// TestRunAlertsHighConfidenceOnly verifies alerts fire only at or above the
// configured threshold, once per recipient.
func TestRunAlertsHighConfidenceOnly(t *testing.T) {
	repo, engine := seedEngine(t)
	ingestIndicator(t, repo, intel.TypeIPAddress, "203.0.113.7", 80)
	ingestIndicator(t, repo, intel.TypeIPAddress, "198.51.100.9", 40)
	repo.AddAsset(testOrg, &intel.Asset{Name: "web-01", IPAddress: "203.0.113.7"})
	repo.AddAsset(testOrg, &intel.Asset{Name: "db-01", IPAddress: "198.51.100.9"})
	repo.AddUser(testOrg, "u-officer", "MAIN_OFFICER")
	repo.AddUser(testOrg, "u-analyst", "ANALYST")

	summary, err := engine.Run(context.Background(), testOrg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.MatchesCreated != 2 {
		t.Fatalf("matches created = %d, want 2", summary.MatchesCreated)
	}
	if summary.AlertsGenerated != 2 {
		t.Errorf("alerts = %d, want 2 (one high-confidence match, two recipients)", summary.AlertsGenerated)
	}

	notifications := repo.Notifications(testOrg)
	if len(notifications) != 2 {
		t.Fatalf("notifications = %d, want 2", len(notifications))
	}
	for _, notification := range notifications {
		if notification.Title != "High-confidence IOC match" {
			t.Errorf("title = %q", notification.Title)
		}
		if notification.Message != "203.0.113.7 matched asset web-01 (ipAddress)." {
			t.Errorf("message = %q", notification.Message)
		}
		if notification.Type != "WARNING" || notification.Link != "/threats" {
			t.Errorf("notification = %+v", notification)
		}
	}
}

// TestRunAlertMessageUsesNormalizedValue verifies alert text carries the
// canonical indicator value, not the raw form the feed delivered.
func TestRunAlertMessageUsesNormalizedValue(t *testing.T) {
	repo, engine := seedEngine(t)
	now := time.Now().UTC()
	if _, err := repo.UpsertIndicator(context.Background(), testOrg, "feed-1", intel.NormalizedIndicator{
		Type:            intel.TypeDomain,
		Value:           "EVIL.Example.COM.",
		NormalizedValue: "evil.example.com",
		Confidence:      intPtr(90),
		Severity:        intel.SeverityHigh,
		FirstSeen:       now,
		LastSeen:        now,
		Source:          "URLHAUS",
	}); err != nil {
		t.Fatalf("seeding indicator: %v", err)
	}
	repo.AddAsset(testOrg, &intel.Asset{Name: "gw-01", Hostname: "evil.example.com"})
	repo.AddUser(testOrg, "u-1", "ANALYST")

	summary, err := engine.Run(context.Background(), testOrg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.AlertsGenerated != 1 {
		t.Fatalf("alerts = %d, want 1", summary.AlertsGenerated)
	}
	notifications := repo.Notifications(testOrg)
	if notifications[0].Message != "evil.example.com matched asset gw-01 (hostname)." {
		t.Errorf("message = %q", notifications[0].Message)
	}
}

// TestRunSkipsExpiredIndicators verifies expired indicators never correlate.
func TestRunSkipsExpiredIndicators(t *testing.T) {
	repo, engine := seedEngine(t)
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	if _, err := repo.UpsertIndicator(context.Background(), testOrg, "feed-1", intel.NormalizedIndicator{
		Type:            intel.TypeIPAddress,
		Value:           "203.0.113.7",
		NormalizedValue: "203.0.113.7",
		FirstSeen:       now.Add(-48 * time.Hour),
		LastSeen:        now.Add(-24 * time.Hour),
		ExpiresAt:       &past,
		Source:          "URLHAUS",
	}); err != nil {
		t.Fatalf("seeding indicator: %v", err)
	}
	repo.AddAsset(testOrg, &intel.Asset{Name: "web-01", IPAddress: "203.0.113.7"})

	summary, err := engine.Run(context.Background(), testOrg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.ScannedIndicators != 0 || summary.MatchesCreated != 0 {
		t.Errorf("summary = %+v, want nothing scanned or matched", summary)
	}
}

// TestRunEmptyOrganization verifies a pass over nothing is a cheap no-op.
func TestRunEmptyOrganization(t *testing.T) {
	_, engine := seedEngine(t)

	summary, err := engine.Run(context.Background(), testOrg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.MatchesCreated != 0 || summary.AlertsGenerated != 0 {
		t.Errorf("summary = %+v", summary)
	}
}
