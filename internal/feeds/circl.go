package feeds

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/vantran-sec/threatsync/internal/config"
	"github.com/vantran-sec/threatsync/internal/intel"
	"github.com/vantran-sec/threatsync/internal/ioc"
	"github.com/vantran-sec/threatsync/internal/outbound"
)

var cveIDPattern = regexp.MustCompile(`(?i)CVE-\d{4}-\d{4,7}`)

// collectCVEIDs walks an arbitrarily nested advisory document and gathers
// every CVE identifier mentioned anywhere in it, uppercased and deduplicated.
// CIRCL advisories have no stable schema, so a recursive sweep beats chasing
// individual fields.
func collectCVEIDs(value any, out map[string]struct{}) {
	switch v := value.(type) {
	case string:
		for _, match := range cveIDPattern.FindAllString(v, -1) {
			out[strings.ToUpper(match)] = struct{}{}
		}
	case []any:
		for _, item := range v {
			collectCVEIDs(item, out)
		}
	case map[string]any:
		for _, entry := range v {
			collectCVEIDs(entry, out)
		}
	}
}

// CIRCLRecord is one CVE reference extracted from a CIRCL advisory.
type CIRCLRecord struct {
	ID          string
	CVEID       string
	PublishedAt time.Time
}

// CIRCLAdapter ingests recent vulnerability advisories from CIRCL.
type CIRCLAdapter struct {
	cfg    *config.Config
	client *outbound.Client
}

// NewCIRCLAdapter builds the CIRCL advisory adapter.
func NewCIRCLAdapter(cfg *config.Config, client *outbound.Client) *CIRCLAdapter {
	return &CIRCLAdapter{cfg: cfg, client: client}
}

func (a *CIRCLAdapter) Source() string           { return SourceCIRCL }
func (a *CIRCLAdapter) FeedType() intel.FeedType { return intel.FeedTypeCVE }

func (a *CIRCLAdapter) lastURL() string {
	return strings.TrimRight(a.cfg.Feeds.CIRCLBaseURL, "/") + "/last"
}

// FetchSince pulls the latest advisory batch and extracts every CVE
// reference from each advisory.
func (a *CIRCLAdapter) FetchSince(ctx context.Context, checkpoint string) (*FetchResult, error) {
	var advisories []any
	err := a.client.FetchJSON(ctx, outbound.Request{
		URL:         a.lastURL(),
		Headers:     map[string]string{"Accept": "application/json"},
		Timeout:     a.cfg.Ingestion.Timeout,
		MaxRetries:  a.cfg.Ingestion.MaxRetries,
		BaseBackoff: a.cfg.Ingestion.BaseBackoff,
	}, &advisories)
	if err != nil {
		return nil, fmt.Errorf("fetching CIRCL advisories: %w", err)
	}

	var records []any
	for _, advisory := range advisories {
		cves := make(map[string]struct{})
		collectCVEIDs(advisory, cves)

		published := time.Now().UTC()
		if doc, ok := advisory.(map[string]any); ok {
			if raw, ok := doc["published"].(string); ok {
				if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
					published = parsed
				}
			}
		}

		ids := make([]string, 0, len(cves))
		for cveID := range cves {
			ids = append(ids, cveID)
		}
		sort.Strings(ids)

		for _, cveID := range ids {
			records = append(records, CIRCLRecord{
				ID:          fmt.Sprintf("%s-%s", cveID, published.Format(time.RFC3339)),
				CVEID:       cveID,
				PublishedAt: published,
			})
		}
	}

	return &FetchResult{
		Records:    records,
		Checkpoint: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// Normalize converts one CVE reference into a canonical indicator.
func (a *CIRCLAdapter) Normalize(record any, nctx Context) *intel.NormalizedIndicator {
	rec, ok := record.(CIRCLRecord)
	if !ok {
		return nil
	}

	normalized := ioc.NormalizeValue(intel.TypeCVE, rec.CVEID)
	published := rec.PublishedAt
	confidence := ioc.CalculateConfidence(ioc.ConfidenceInput{
		Source:    SourceCIRCL,
		FirstSeen: &published,
		LastSeen:  &published,
		Severity:  intel.SeverityMedium,
	})
	expires := ioc.CalculateExpiration(intel.TypeCVE, published, a.cfg.Scoring)

	return &intel.NormalizedIndicator{
		Type:            intel.TypeCVE,
		Value:           rec.CVEID,
		NormalizedValue: normalized,
		Confidence:      &confidence,
		Severity:        intel.SeverityMedium,
		FirstSeen:       published,
		LastSeen:        published,
		ExpiresAt:       &expires,
		Source:          SourceCIRCL,
		Description:     "CIRCL advisory reference",
		Tags:            []string{"circl", "advisory"},
		Metadata: map[string]any{
			"recordId": rec.ID,
		},
	}
}

// Health probes the advisory endpoint.
func (a *CIRCLAdapter) Health(ctx context.Context) Health {
	var probe []any
	err := a.client.FetchJSON(ctx, outbound.Request{
		URL:         a.lastURL(),
		Timeout:     a.cfg.Ingestion.Timeout,
		MaxRetries:  1,
		BaseBackoff: a.cfg.Ingestion.BaseBackoff,
	}, &probe)
	if err != nil {
		return Health{OK: false, Message: err.Error()}
	}
	return Health{OK: true, Message: "CIRCL reachable"}
}
