package feeds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vantran-sec/threatsync/internal/config"
	"github.com/vantran-sec/threatsync/internal/intel"
	"github.com/vantran-sec/threatsync/internal/ioc"
	"github.com/vantran-sec/threatsync/internal/outbound"
)

// abuse.ch timestamps come as "2006-01-02 15:04:05 UTC" or bare.
var abuseCHTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
}

func parseAbuseCHTime(raw string) (time.Time, bool) {
	for _, layout := range abuseCHTimeLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

type urlhausResponse struct {
	QueryStatus string `json:"query_status"`
	URLs        []struct {
		ID        string   `json:"id"`
		URL       string   `json:"url"`
		DateAdded string   `json:"date_added"`
		Threat    string   `json:"threat"`
		Tags      []string `json:"tags"`
		URLStatus string   `json:"url_status"`
	} `json:"urls"`
}

// URLHausRecord is one recent malicious URL row.
type URLHausRecord struct {
	ID        string
	URL       string
	FirstSeen time.Time
	Tags      []string
	Threat    string
}

// URLHausAdapter ingests the recent malicious URL batch from abuse.ch
// URLhaus.
type URLHausAdapter struct {
	cfg    *config.Config
	client *outbound.Client
}

// NewURLHausAdapter builds the URLhaus adapter.
func NewURLHausAdapter(cfg *config.Config, client *outbound.Client) *URLHausAdapter {
	return &URLHausAdapter{cfg: cfg, client: client}
}

func (a *URLHausAdapter) Source() string           { return SourceURLHaus }
func (a *URLHausAdapter) FeedType() intel.FeedType { return intel.FeedTypeIOC }

func (a *URLHausAdapter) recentURL() string {
	base := a.cfg.Feeds.URLHausBaseURL
	if base == "" {
		base = "https://urlhaus-api.abuse.ch/v1"
	}
	return strings.TrimRight(base, "/") + "/urls/recent/"
}

func (a *URLHausAdapter) fetchRecent(ctx context.Context, authKey string, maxRetries int) (*urlhausResponse, error) {
	var payload urlhausResponse
	err := a.client.FetchJSON(ctx, outbound.Request{
		URL:    a.recentURL(),
		Method: "POST",
		Headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
			"Auth-Key":     authKey,
		},
		Body:        []byte("query=get_recent&selector=time"),
		Timeout:     a.cfg.Ingestion.Timeout,
		MaxRetries:  maxRetries,
		BaseBackoff: a.cfg.Ingestion.BaseBackoff,
	}, &payload)
	if err != nil {
		return nil, err
	}
	return &payload, nil
}

// FetchSince pulls the recent URL batch. A non-ok query status surfaces as
// a run warning rather than a failure since partial batches still carry
// usable rows.
func (a *URLHausAdapter) FetchSince(ctx context.Context, checkpoint string) (*FetchResult, error) {
	authKey := a.cfg.Feeds.URLHausAuthKey()
	if authKey == "" {
		return &FetchResult{Warnings: []string{"URLHAUS_AUTH_KEY not configured"}}, nil
	}

	payload, err := a.fetchRecent(ctx, authKey, a.cfg.Ingestion.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("fetching URLhaus recent URLs: %w", err)
	}

	var records []any
	for _, item := range payload.URLs {
		if item.URL == "" {
			continue
		}
		firstSeen := time.Now().UTC()
		if parsed, ok := parseAbuseCHTime(item.DateAdded); ok {
			firstSeen = parsed
		}
		id := item.ID
		if id == "" {
			id = fmt.Sprintf("%s-%s", item.URL, firstSeen.Format(time.RFC3339))
		}
		records = append(records, URLHausRecord{
			ID:        id,
			URL:       item.URL,
			FirstSeen: firstSeen,
			Tags:      item.Tags,
			Threat:    item.Threat,
		})
	}

	var warnings []string
	if payload.QueryStatus != "ok" {
		warnings = append(warnings, fmt.Sprintf("URLhaus query status: %s", payload.QueryStatus))
	}

	return &FetchResult{
		Records:    records,
		Checkpoint: time.Now().UTC().Format(time.RFC3339),
		Warnings:   warnings,
	}, nil
}

// Normalize converts one URLhaus row. Rows tagged as malware distribution
// get HIGH severity.
func (a *URLHausAdapter) Normalize(record any, nctx Context) *intel.NormalizedIndicator {
	rec, ok := record.(URLHausRecord)
	if !ok {
		return nil
	}

	severity := intel.SeverityMedium
	if strings.Contains(strings.ToLower(rec.Threat), "malware") {
		severity = intel.SeverityHigh
	}

	firstSeen := rec.FirstSeen
	normalized := ioc.NormalizeValue(intel.TypeURL, rec.URL)
	confidence := ioc.CalculateConfidence(ioc.ConfidenceInput{
		Source:    SourceURLHaus,
		FirstSeen: &firstSeen,
		LastSeen:  &firstSeen,
		Severity:  severity,
	})
	expires := ioc.CalculateExpiration(intel.TypeURL, firstSeen, a.cfg.Scoring)

	return &intel.NormalizedIndicator{
		Type:            intel.TypeURL,
		Value:           rec.URL,
		NormalizedValue: normalized,
		Confidence:      &confidence,
		Severity:        severity,
		FirstSeen:       firstSeen,
		LastSeen:        firstSeen,
		ExpiresAt:       &expires,
		Source:          SourceURLHaus,
		Description:     rec.Threat,
		Tags:            append(append([]string{}, rec.Tags...), "urlhaus"),
		Metadata: map[string]any{
			"externalId": rec.ID,
		},
	}
}

// Health probes the recent-URLs endpoint with a single attempt.
func (a *URLHausAdapter) Health(ctx context.Context) Health {
	authKey := a.cfg.Feeds.URLHausAuthKey()
	if authKey == "" {
		return Health{OK: false, Message: "URLhaus auth key missing"}
	}
	if _, err := a.fetchRecent(ctx, authKey, 1); err != nil {
		return Health{OK: false, Message: err.Error()}
	}
	return Health{OK: true, Message: "URLhaus reachable"}
}
