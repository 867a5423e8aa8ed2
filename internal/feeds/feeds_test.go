package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/vantran-sec/threatsync/internal/config"
	"github.com/vantran-sec/threatsync/internal/intel"
	"github.com/vantran-sec/threatsync/internal/outbound"
)

// handlerTransport serves requests straight from an http.Handler so adapter
// tests can use public-looking hostnames that pass the outbound guard.
type handlerTransport struct {
	handler http.Handler
}

func (t handlerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rec := httptest.NewRecorder()
	t.handler.ServeHTTP(rec, req)
	return rec.Result(), nil
}

func testClient(handler http.Handler) *outbound.Client {
	noDNS := false
	client := outbound.NewClient(outbound.GuardPolicy{ResolveDNS: &noDNS}, nil)
	return client.WithHTTPTransport(handlerTransport{handler: handler})
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Ingestion.Timeout = 2 * time.Second
	cfg.Ingestion.MaxRetries = 0
	cfg.Ingestion.BaseBackoff = time.Millisecond
	cfg.Feeds.OTXAPIKeyEnv = "TEST_OTX_KEY"
	cfg.Feeds.URLHausAuthKeyEnv = "TEST_URLHAUS_KEY"
	cfg.Feeds.MalwareBazaarAuthKeyEnv = "TEST_MB_KEY"
	cfg.Feeds.OTXBaseURL = "https://otx.example.com"
	cfg.Feeds.CIRCLBaseURL = "https://vulnerability.example.com/api/"
	cfg.Feeds.URLHausBaseURL = "https://urlhaus.example.com/v1"
	cfg.Feeds.MalwareBazaarBaseURL = "https://mb.example.com/api/v1"
	return cfg
}

// =============================================================================
// OTX Adapter Tests
// =============================================================================

// TestOTX_MissingKeyIsWarning verifies a missing API key produces a warning
// and zero records instead of an error.
func TestOTX_MissingKeyIsWarning(t *testing.T) {
	os.Unsetenv("TEST_OTX_KEY")

	adapter := NewOTXAdapter(testConfig(), testClient(http.NotFoundHandler()))

	result, err := adapter.FetchSince(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchSince should not error on missing key: %v", err)
	}

	if len(result.Records) != 0 {
		t.Errorf("expected 0 records, got %d", len(result.Records))
	}
	if len(result.Warnings) != 1 || result.Warnings[0] != "OTX_API_KEY not configured" {
		t.Errorf("expected missing-key warning, got %v", result.Warnings)
	}
	if result.Checkpoint != "" {
		t.Errorf("expected empty checkpoint, got %q", result.Checkpoint)
	}
}

// TestOTX_FetchFlattensPulses verifies pulses are flattened to one record
// per indicator and the API key header is sent.
func TestOTX_FetchFlattensPulses(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/pulses/subscribed" {
			t.Errorf("expected subscribed pulses path, got %s", r.URL.Path)
		}
		if r.Header.Get("X-OTX-API-KEY") != "test-api-key" {
			t.Errorf("expected API key header, got %q", r.Header.Get("X-OTX-API-KEY"))
		}

		w.Write([]byte(`{"results": [{
			"id": "pulse-1",
			"name": "Botnet Tracker",
			"tags": ["botnet"],
			"indicators": [
				{"indicator": "198.51.100.7", "type": "IPv4", "created": "2026-08-01T00:00:00Z"},
				{"indicator": "evil.example.com", "type": "domain"},
				{"indicator": "", "type": "IPv4"}
			]
		}]}`))
	})

	os.Setenv("TEST_OTX_KEY", "test-api-key")
	defer os.Unsetenv("TEST_OTX_KEY")

	adapter := NewOTXAdapter(testConfig(), testClient(handler))

	result, err := adapter.FetchSince(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchSince failed: %v", err)
	}

	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records (empty value dropped), got %d", len(result.Records))
	}
	if result.Checkpoint == "" {
		t.Error("expected RFC3339 checkpoint")
	}

	rec := result.Records[0].(OTXRecord)
	if rec.PulseName != "Botnet Tracker" || rec.IndicatorValue != "198.51.100.7" {
		t.Errorf("unexpected first record: %+v", rec)
	}
}

// TestOTX_NormalizeMapsTypes verifies OTX type mapping, tag suffixing, and
// the pulse description format.
func TestOTX_NormalizeMapsTypes(t *testing.T) {
	adapter := NewOTXAdapter(testConfig(), testClient(http.NotFoundHandler()))

	record := OTXRecord{
		PulseID:        "pulse-9",
		PulseName:      "Phishing Wave",
		IndicatorValue: "198.51.100.7",
		IndicatorType:  "IPv4",
		Tags:           []string{"phishing"},
		CreatedAt:      "2026-08-20T10:00:00Z",
	}

	normalized := adapter.Normalize(record, Context{OrganizationID: "org-1"})
	if normalized == nil {
		t.Fatal("expected normalized indicator")
	}

	if normalized.Type != intel.TypeIPAddress {
		t.Errorf("expected IP_ADDRESS, got %s", normalized.Type)
	}
	if normalized.Description != "Phishing Wave (pulse-9)" {
		t.Errorf("unexpected description %q", normalized.Description)
	}
	if normalized.Severity != intel.SeverityMedium {
		t.Errorf("expected MEDIUM severity, got %s", normalized.Severity)
	}
	if len(normalized.Tags) != 2 || normalized.Tags[1] != "otx" {
		t.Errorf("expected otx tag appended, got %v", normalized.Tags)
	}
	if normalized.Confidence == nil || *normalized.Confidence <= 0 {
		t.Error("expected positive confidence")
	}
	if normalized.ExpiresAt == nil {
		t.Error("expected expiration date")
	}
}

// TestOTX_NormalizeSkipsUnmappedType verifies unmapped OTX types are dropped.
func TestOTX_NormalizeSkipsUnmappedType(t *testing.T) {
	adapter := NewOTXAdapter(testConfig(), testClient(http.NotFoundHandler()))

	record := OTXRecord{
		PulseID:        "pulse-9",
		PulseName:      "Yara Rules",
		IndicatorValue: "rule evil {}",
		IndicatorType:  "YARA",
	}

	if adapter.Normalize(record, Context{}) != nil {
		t.Error("expected nil for unmapped indicator type")
	}
}

// =============================================================================
// CIRCL Adapter Tests
// =============================================================================

// TestCIRCL_ExtractsCVEsFromNestedAdvisories verifies the recursive CVE
// sweep deduplicates and uppercases identifiers from arbitrary nesting.
func TestCIRCL_ExtractsCVEsFromNestedAdvisories(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/last" {
			t.Errorf("expected /api/last path, got %s", r.URL.Path)
		}
		w.Write([]byte(`[{
			"published": "2026-08-15T00:00:00Z",
			"title": "Advisory about cve-2026-12345",
			"references": [{"note": "see CVE-2026-12345 and CVE-2025-0001"}]
		}]`))
	})

	adapter := NewCIRCLAdapter(testConfig(), testClient(handler))

	result, err := adapter.FetchSince(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchSince failed: %v", err)
	}

	if len(result.Records) != 2 {
		t.Fatalf("expected 2 deduplicated CVEs, got %d", len(result.Records))
	}

	first := result.Records[0].(CIRCLRecord)
	if first.CVEID != "CVE-2025-0001" {
		t.Errorf("expected uppercased sorted CVE first, got %q", first.CVEID)
	}
	if !first.PublishedAt.Equal(time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected published date from advisory, got %v", first.PublishedAt)
	}
}

// TestCIRCL_NormalizeProducesCVEIndicator verifies CVE records normalize
// with the advisory tags and MEDIUM severity.
func TestCIRCL_NormalizeProducesCVEIndicator(t *testing.T) {
	adapter := NewCIRCLAdapter(testConfig(), testClient(http.NotFoundHandler()))

	published := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	normalized := adapter.Normalize(CIRCLRecord{
		ID:          "CVE-2026-12345-2026-08-15T00:00:00Z",
		CVEID:       "CVE-2026-12345",
		PublishedAt: published,
	}, Context{})

	if normalized == nil {
		t.Fatal("expected normalized indicator")
	}
	if normalized.Type != intel.TypeCVE {
		t.Errorf("expected CVE type, got %s", normalized.Type)
	}
	if normalized.NormalizedValue != "CVE-2026-12345" {
		t.Errorf("unexpected normalized value %q", normalized.NormalizedValue)
	}
	if len(normalized.Tags) != 2 || normalized.Tags[0] != "circl" || normalized.Tags[1] != "advisory" {
		t.Errorf("unexpected tags %v", normalized.Tags)
	}
}

// =============================================================================
// URLhaus Adapter Tests
// =============================================================================

// TestURLHaus_PostsFormBody verifies the recent-URLs query shape and the
// auth header.
func TestURLHaus_PostsFormBody(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Auth-Key") != "test-auth-key" {
			t.Errorf("expected auth key header, got %q", r.Header.Get("Auth-Key"))
		}
		body := make([]byte, 64)
		n, _ := r.Body.Read(body)
		if string(body[:n]) != "query=get_recent&selector=time" {
			t.Errorf("unexpected body %q", string(body[:n]))
		}

		w.Write([]byte(`{"query_status": "ok", "urls": [
			{"id": "123", "url": "http://bad.example.com/payload.exe", "date_added": "2026-08-20 10:00:00 UTC", "threat": "malware_download", "tags": ["exe"]}
		]}`))
	})

	os.Setenv("TEST_URLHAUS_KEY", "test-auth-key")
	defer os.Unsetenv("TEST_URLHAUS_KEY")

	adapter := NewURLHausAdapter(testConfig(), testClient(handler))

	result, err := adapter.FetchSince(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchSince failed: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result.Records))
	}
	if len(result.Warnings) != 0 {
		t.Errorf("expected no warnings for ok status, got %v", result.Warnings)
	}
}

// TestURLHaus_NonOKStatusIsWarning verifies a degraded query status surfaces
// as a warning, not a failure.
func TestURLHaus_NonOKStatusIsWarning(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query_status": "no_results", "urls": []}`))
	})

	os.Setenv("TEST_URLHAUS_KEY", "test-auth-key")
	defer os.Unsetenv("TEST_URLHAUS_KEY")

	adapter := NewURLHausAdapter(testConfig(), testClient(handler))

	result, err := adapter.FetchSince(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchSince failed: %v", err)
	}
	if len(result.Warnings) != 1 || result.Warnings[0] != "URLhaus query status: no_results" {
		t.Errorf("expected query status warning, got %v", result.Warnings)
	}
}

// TestURLHaus_MalwareThreatIsHighSeverity verifies threat classification
// drives severity.
func TestURLHaus_MalwareThreatIsHighSeverity(t *testing.T) {
	adapter := NewURLHausAdapter(testConfig(), testClient(http.NotFoundHandler()))
	firstSeen := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	malware := adapter.Normalize(URLHausRecord{
		ID:        "1",
		URL:       "http://bad.example.com/payload.exe",
		FirstSeen: firstSeen,
		Threat:    "malware_download",
	}, Context{})
	if malware.Severity != intel.SeverityHigh {
		t.Errorf("expected HIGH for malware threat, got %s", malware.Severity)
	}

	other := adapter.Normalize(URLHausRecord{
		ID:        "2",
		URL:       "http://shady.example.com/",
		FirstSeen: firstSeen,
		Threat:    "phishing",
	}, Context{})
	if other.Severity != intel.SeverityMedium {
		t.Errorf("expected MEDIUM for non-malware threat, got %s", other.Severity)
	}

	if !strings.Contains(malware.NormalizedValue, "bad.example.com") {
		t.Errorf("unexpected normalized URL %q", malware.NormalizedValue)
	}
	if malware.Tags[len(malware.Tags)-1] != "urlhaus" {
		t.Errorf("expected urlhaus tag appended, got %v", malware.Tags)
	}
}

// =============================================================================
// MalwareBazaar Adapter Tests
// =============================================================================

// TestMalwareBazaar_NormalizesSampleHashes verifies sample rows become
// HIGH-severity SHA-256 indicators.
func TestMalwareBazaar_NormalizesSampleHashes(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query_status": "ok", "data": [
			{"sha256_hash": "E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855",
			 "file_name": "invoice.exe", "signature": "AgentTesla",
			 "first_seen": "2026-08-19 08:30:00 UTC", "tags": ["exe"]}
		]}`))
	})

	os.Setenv("TEST_MB_KEY", "test-mb-key")
	defer os.Unsetenv("TEST_MB_KEY")

	adapter := NewMalwareBazaarAdapter(testConfig(), testClient(handler))

	result, err := adapter.FetchSince(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchSince failed: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result.Records))
	}

	normalized := adapter.Normalize(result.Records[0], Context{})
	if normalized == nil {
		t.Fatal("expected normalized indicator")
	}
	if normalized.Type != intel.TypeFileHashSHA256 {
		t.Errorf("expected SHA256 hash type, got %s", normalized.Type)
	}
	if normalized.NormalizedValue != strings.ToLower("E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855") {
		t.Errorf("expected lowercased hash, got %q", normalized.NormalizedValue)
	}
	if normalized.Severity != intel.SeverityHigh {
		t.Errorf("expected HIGH severity, got %s", normalized.Severity)
	}
	if normalized.Description != "AgentTesla" {
		t.Errorf("expected signature as description, got %q", normalized.Description)
	}
}

// =============================================================================
// Custom Adapter Tests
// =============================================================================

// TestCustom_JSONArray verifies the bare-array JSON shape with declared and
// guessed types.
func TestCustom_JSONArray(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer feed-secret" {
			t.Errorf("expected bearer auth, got %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`[
			{"value": "198.51.100.9", "type": "IP_ADDRESS", "confidence": 88, "severity": "high", "tags": ["c2"]},
			{"indicator": "http://evil.example.org/x", "first_seen": "2026-08-01T00:00:00Z"}
		]`))
	})

	adapter := NewCustomAdapter(testConfig(), testClient(handler), CustomOptions{
		Source: "PARTNER_FEED",
		URL:    "https://feeds.example.org/iocs.json",
		Format: intel.FormatJSON,
		APIKey: "feed-secret",
	})

	result, err := adapter.FetchSince(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchSince failed: %v", err)
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}

	first := result.Records[0].(CustomRecord)
	if first.Type != intel.TypeIPAddress || first.Confidence == nil || *first.Confidence != 88 {
		t.Errorf("unexpected first record: %+v", first)
	}
	if first.Severity != intel.SeverityHigh {
		t.Errorf("expected HIGH from lowercase severity, got %s", first.Severity)
	}

	second := result.Records[1].(CustomRecord)
	if second.Type != intel.TypeURL {
		t.Errorf("expected guessed URL type, got %s", second.Type)
	}
}

// TestCustom_JSONDataWrapper verifies the {"data": [...]} shape.
func TestCustom_JSONDataWrapper(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [{"value": "evil.example.net"}]}`))
	})

	adapter := NewCustomAdapter(testConfig(), testClient(handler), CustomOptions{
		Source: "PARTNER_FEED",
		URL:    "https://feeds.example.org/iocs.json",
		Format: intel.FormatJSON,
	})

	result, err := adapter.FetchSince(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchSince failed: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result.Records))
	}
	if result.Records[0].(CustomRecord).Type != intel.TypeDomain {
		t.Errorf("expected guessed DOMAIN type, got %s", result.Records[0].(CustomRecord).Type)
	}
}

// TestCustom_CSVParsing verifies quoted fields, case-insensitive headers,
// pipe-separated tags, and inferred types.
func TestCustom_CSVParsing(t *testing.T) {
	csv := "Value,Type,Confidence,Severity,Tags,Description\n" +
		`198.51.100.10,,70,HIGH,c2|botnet,"Command, and control"` + "\n" +
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855,,,,," + "\n" +
		",,,,,missing value row\n"

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(csv))
	})

	adapter := NewCustomAdapter(testConfig(), testClient(handler), CustomOptions{
		Source: "CSV_FEED",
		URL:    "https://feeds.example.org/iocs.csv",
		Format: intel.FormatCSV,
	})

	result, err := adapter.FetchSince(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchSince failed: %v", err)
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records (valueless row dropped), got %d", len(result.Records))
	}

	first := result.Records[0].(CustomRecord)
	if first.Type != intel.TypeIPAddress {
		t.Errorf("expected inferred IP_ADDRESS, got %s", first.Type)
	}
	if first.Confidence == nil || *first.Confidence != 70 {
		t.Errorf("expected confidence 70, got %v", first.Confidence)
	}
	if len(first.Tags) != 2 || first.Tags[0] != "c2" || first.Tags[1] != "botnet" {
		t.Errorf("unexpected tags %v", first.Tags)
	}
	if first.Description != "Command, and control" {
		t.Errorf("quoted field mangled: %q", first.Description)
	}

	second := result.Records[1].(CustomRecord)
	if second.Type != intel.TypeFileHashSHA256 {
		t.Errorf("64-hex value must infer SHA256, got %s", second.Type)
	}
}

// TestCustom_NonOKStatusFails verifies HTTP failures carry the feed name
// and status code.
func TestCustom_NonOKStatusFails(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	adapter := NewCustomAdapter(testConfig(), testClient(handler), CustomOptions{
		Source: "PARTNER_FEED",
		URL:    "https://feeds.example.org/iocs.json",
		Format: intel.FormatJSON,
	})

	_, err := adapter.FetchSince(context.Background(), "")
	if err == nil {
		t.Fatal("expected error on 403")
	}
	if !strings.Contains(err.Error(), "Custom feed PARTNER_FEED failed (403)") {
		t.Errorf("unexpected error: %v", err)
	}
}

// TestCustom_NormalizePrefersFeedConfidence verifies feed-supplied
// confidence and expiration win over computed values.
func TestCustom_NormalizePrefersFeedConfidence(t *testing.T) {
	adapter := NewCustomAdapter(testConfig(), testClient(http.NotFoundHandler()), CustomOptions{
		Source: "PARTNER_FEED",
		URL:    "https://feeds.example.org/iocs.json",
		Format: intel.FormatJSON,
	})

	confidence := 33
	expires := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	normalized := adapter.Normalize(CustomRecord{
		Type:       intel.TypeDomain,
		Value:      "Evil.Example.Net",
		Confidence: &confidence,
		FirstSeen:  now,
		LastSeen:   now,
		ExpiresAt:  &expires,
	}, Context{})

	if normalized.Confidence == nil || *normalized.Confidence != 33 {
		t.Errorf("expected feed confidence 33, got %v", normalized.Confidence)
	}
	if normalized.ExpiresAt == nil || !normalized.ExpiresAt.Equal(expires) {
		t.Errorf("expected feed expiration, got %v", normalized.ExpiresAt)
	}
	if normalized.NormalizedValue != "evil.example.net" {
		t.Errorf("expected lowercased domain, got %q", normalized.NormalizedValue)
	}
	if custom, ok := normalized.Metadata["custom"].(bool); !ok || !custom {
		t.Errorf("expected custom metadata marker, got %v", normalized.Metadata)
	}
}

// =============================================================================
// Registry Tests
// =============================================================================

// TestRegistry_ResolvesNamedSources verifies each built-in source resolves
// to its dedicated adapter.
func TestRegistry_ResolvesNamedSources(t *testing.T) {
	registry := NewRegistry(testConfig(), testClient(http.NotFoundHandler()), nil, nil)

	for source, feedType := range map[string]intel.FeedType{
		SourceOTX:           intel.FeedTypeIOC,
		SourceCIRCL:         intel.FeedTypeCVE,
		SourceURLHaus:       intel.FeedTypeIOC,
		SourceMalwareBazaar: intel.FeedTypeMalware,
	} {
		adapter, err := registry.ForFeed(&intel.ThreatFeed{Source: source})
		if err != nil {
			t.Fatalf("ForFeed(%s) failed: %v", source, err)
		}
		if adapter == nil {
			t.Fatalf("expected adapter for %s", source)
		}
		if adapter.Source() != source {
			t.Errorf("expected source %s, got %s", source, adapter.Source())
		}
		if adapter.FeedType() != feedType {
			t.Errorf("%s: expected feed type %s, got %s", source, feedType, adapter.FeedType())
		}
	}
}

// TestRegistry_MitreHasNoAdapter verifies the ATT&CK source is handled by
// the TAXII pipeline, not a feed adapter.
func TestRegistry_MitreHasNoAdapter(t *testing.T) {
	registry := NewRegistry(testConfig(), testClient(http.NotFoundHandler()), nil, nil)

	adapter, err := registry.ForFeed(&intel.ThreatFeed{Source: SourceMITREAttack})
	if err != nil {
		t.Fatalf("ForFeed failed: %v", err)
	}
	if adapter != nil {
		t.Error("expected nil adapter for MITRE_ATTACK")
	}
}

// TestRegistry_UnknownSourceFallsBackToCustom verifies unknown sources with
// a URL resolve to the custom adapter, and URL-less ones to nil.
func TestRegistry_UnknownSourceFallsBackToCustom(t *testing.T) {
	registry := NewRegistry(testConfig(), testClient(http.NotFoundHandler()), nil, nil)

	adapter, err := registry.ForFeed(&intel.ThreatFeed{
		Source: "PARTNER_FEED",
		URL:    "https://feeds.example.org/iocs.json",
		Format: intel.FormatJSON,
	})
	if err != nil {
		t.Fatalf("ForFeed failed: %v", err)
	}
	if adapter == nil {
		t.Fatal("expected custom adapter")
	}
	if adapter.Source() != "PARTNER_FEED" {
		t.Errorf("expected PARTNER_FEED source, got %s", adapter.Source())
	}

	none, err := registry.ForFeed(&intel.ThreatFeed{Source: "PARTNER_FEED"})
	if err != nil {
		t.Fatalf("ForFeed failed: %v", err)
	}
	if none != nil {
		t.Error("expected nil adapter for custom source without URL")
	}
}
