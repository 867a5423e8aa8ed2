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

type malwareBazaarResponse struct {
	QueryStatus string `json:"query_status"`
	Data        []struct {
		SHA256Hash string   `json:"sha256_hash"`
		FileName   string   `json:"file_name"`
		FileType   string   `json:"file_type"`
		Signature  string   `json:"signature"`
		FirstSeen  string   `json:"first_seen"`
		Tags       []string `json:"tags"`
	} `json:"data"`
}

// MalwareBazaarRecord is one recent malware sample row.
type MalwareBazaarRecord struct {
	SHA256    string
	FileName  string
	FileType  string
	Signature string
	FirstSeen time.Time
	Tags      []string
}

// MalwareBazaarAdapter ingests recent malware sample hashes from abuse.ch
// MalwareBazaar. Same API shape as URLhaus; only the payload rows differ.
type MalwareBazaarAdapter struct {
	cfg    *config.Config
	client *outbound.Client
}

// NewMalwareBazaarAdapter builds the MalwareBazaar adapter.
func NewMalwareBazaarAdapter(cfg *config.Config, client *outbound.Client) *MalwareBazaarAdapter {
	return &MalwareBazaarAdapter{cfg: cfg, client: client}
}

func (a *MalwareBazaarAdapter) Source() string           { return SourceMalwareBazaar }
func (a *MalwareBazaarAdapter) FeedType() intel.FeedType { return intel.FeedTypeMalware }

func (a *MalwareBazaarAdapter) apiURL() string {
	base := a.cfg.Feeds.MalwareBazaarBaseURL
	if base == "" {
		base = "https://mb-api.abuse.ch/api/v1"
	}
	return strings.TrimRight(base, "/") + "/"
}

func (a *MalwareBazaarAdapter) fetchRecent(ctx context.Context, authKey string, maxRetries int) (*malwareBazaarResponse, error) {
	var payload malwareBazaarResponse
	err := a.client.FetchJSON(ctx, outbound.Request{
		URL:    a.apiURL(),
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

// FetchSince pulls the recent sample batch.
func (a *MalwareBazaarAdapter) FetchSince(ctx context.Context, checkpoint string) (*FetchResult, error) {
	authKey := a.cfg.Feeds.MalwareBazaarAuthKey()
	if authKey == "" {
		return &FetchResult{Warnings: []string{"MALWAREBAZAAR_AUTH_KEY not configured"}}, nil
	}

	payload, err := a.fetchRecent(ctx, authKey, a.cfg.Ingestion.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("fetching MalwareBazaar samples: %w", err)
	}

	var records []any
	for _, item := range payload.Data {
		if item.SHA256Hash == "" {
			continue
		}
		firstSeen := time.Now().UTC()
		if parsed, ok := parseAbuseCHTime(item.FirstSeen); ok {
			firstSeen = parsed
		}
		records = append(records, MalwareBazaarRecord{
			SHA256:    item.SHA256Hash,
			FileName:  item.FileName,
			FileType:  item.FileType,
			Signature: item.Signature,
			FirstSeen: firstSeen,
			Tags:      item.Tags,
		})
	}

	var warnings []string
	if payload.QueryStatus != "ok" {
		warnings = append(warnings, fmt.Sprintf("MalwareBazaar query status: %s", payload.QueryStatus))
	}

	return &FetchResult{
		Records:    records,
		Checkpoint: time.Now().UTC().Format(time.RFC3339),
		Warnings:   warnings,
	}, nil
}

// Normalize converts one sample row into a SHA-256 hash indicator. Samples
// are confirmed malware, so severity is HIGH.
func (a *MalwareBazaarAdapter) Normalize(record any, nctx Context) *intel.NormalizedIndicator {
	rec, ok := record.(MalwareBazaarRecord)
	if !ok {
		return nil
	}

	normalized := ioc.NormalizeValue(intel.TypeFileHashSHA256, rec.SHA256)
	if !ioc.IsValidValue(intel.TypeFileHashSHA256, normalized) {
		return nil
	}

	firstSeen := rec.FirstSeen
	confidence := ioc.CalculateConfidence(ioc.ConfidenceInput{
		Source:    SourceMalwareBazaar,
		FirstSeen: &firstSeen,
		LastSeen:  &firstSeen,
		Severity:  intel.SeverityHigh,
	})
	expires := ioc.CalculateExpiration(intel.TypeFileHashSHA256, firstSeen, a.cfg.Scoring)

	description := rec.Signature
	if description == "" {
		description = rec.FileName
	}

	return &intel.NormalizedIndicator{
		Type:            intel.TypeFileHashSHA256,
		Value:           rec.SHA256,
		NormalizedValue: normalized,
		Confidence:      &confidence,
		Severity:        intel.SeverityHigh,
		FirstSeen:       firstSeen,
		LastSeen:        firstSeen,
		ExpiresAt:       &expires,
		Source:          SourceMalwareBazaar,
		Description:     description,
		Tags:            append(append([]string{}, rec.Tags...), "malwarebazaar"),
		Metadata: map[string]any{
			"fileName":  rec.FileName,
			"fileType":  rec.FileType,
			"signature": rec.Signature,
		},
	}
}

// Health probes the API with a single attempt.
func (a *MalwareBazaarAdapter) Health(ctx context.Context) Health {
	authKey := a.cfg.Feeds.MalwareBazaarAuthKey()
	if authKey == "" {
		return Health{OK: false, Message: "MalwareBazaar auth key missing"}
	}
	if _, err := a.fetchRecent(ctx, authKey, 1); err != nil {
		return Health{OK: false, Message: err.Error()}
	}
	return Health{OK: true, Message: "MalwareBazaar reachable"}
}
