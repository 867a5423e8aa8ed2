package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vantran-sec/threatsync/internal/config"
	"github.com/vantran-sec/threatsync/internal/intel"
	"github.com/vantran-sec/threatsync/internal/ioc"
	"github.com/vantran-sec/threatsync/internal/outbound"
)

// CustomOptions configures an organization-defined feed endpoint.
type CustomOptions struct {
	Source  string
	URL     string
	Format  intel.FeedFormat
	APIKey  string
	Headers map[string]string
}

// CustomRecord is one parsed row from a custom JSON or CSV feed. Fields the
// feed left blank stay zero and are filled in during normalization.
type CustomRecord struct {
	Type        intel.IndicatorType
	Value       string
	Confidence  *int
	Severity    intel.Severity
	Description string
	Tags        []string
	FirstSeen   time.Time
	LastSeen    time.Time
	ExpiresAt   *time.Time
}

// CustomAdapter ingests arbitrary JSON or CSV indicator feeds that
// organizations register themselves.
type CustomAdapter struct {
	cfg     *config.Config
	client  *outbound.Client
	source  string
	url     string
	format  intel.FeedFormat
	headers map[string]string
}

// NewCustomAdapter builds an adapter for one registered custom feed.
func NewCustomAdapter(cfg *config.Config, client *outbound.Client, opts CustomOptions) *CustomAdapter {
	headers := map[string]string{"Accept": "application/json"}
	for key, value := range opts.Headers {
		headers[key] = value
	}
	if opts.APIKey != "" && headers["Authorization"] == "" {
		headers["Authorization"] = "Bearer " + opts.APIKey
	}

	return &CustomAdapter{
		cfg:     cfg,
		client:  client,
		source:  opts.Source,
		url:     opts.URL,
		format:  opts.Format,
		headers: headers,
	}
}

func (a *CustomAdapter) Source() string           { return a.source }
func (a *CustomAdapter) FeedType() intel.FeedType { return intel.FeedTypeIOC }

// FetchSince downloads and parses the feed body in its declared format.
func (a *CustomAdapter) FetchSince(ctx context.Context, checkpoint string) (*FetchResult, error) {
	resp, err := a.client.FetchWithRetry(ctx, outbound.Request{
		URL:         a.url,
		Headers:     a.headers,
		Timeout:     a.cfg.Ingestion.Timeout,
		MaxRetries:  a.cfg.Ingestion.MaxRetries,
		BaseBackoff: a.cfg.Ingestion.BaseBackoff,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("Custom feed %s failed (%d)", a.source, resp.StatusCode)
	}

	now := time.Now().UTC()
	var records []any

	if a.format == intel.FormatCSV {
		for _, rec := range parseCSVRecords(string(resp.Body), now) {
			records = append(records, rec)
		}
	} else {
		parsed, err := parseJSONRecords(resp.Body, now)
		if err != nil {
			return nil, fmt.Errorf("parsing custom feed %s: %w", a.source, err)
		}
		for _, rec := range parsed {
			records = append(records, rec)
		}
	}

	return &FetchResult{
		Records:    records,
		Checkpoint: now.Format(time.RFC3339),
	}, nil
}

// Normalize converts one parsed row, preferring the feed's own confidence
// and expiration over computed values.
func (a *CustomAdapter) Normalize(record any, nctx Context) *intel.NormalizedIndicator {
	rec, ok := record.(CustomRecord)
	if !ok {
		return nil
	}

	normalized := ioc.NormalizeValue(rec.Type, rec.Value)
	firstSeen := rec.FirstSeen
	lastSeen := rec.LastSeen

	confidence := 0
	if rec.Confidence != nil {
		confidence = *rec.Confidence
	} else {
		confidence = ioc.CalculateConfidence(ioc.ConfidenceInput{
			Source:    a.source,
			FirstSeen: &firstSeen,
			LastSeen:  &lastSeen,
			Severity:  rec.Severity,
		})
	}

	expiresAt := rec.ExpiresAt
	if expiresAt == nil {
		computed := ioc.CalculateExpiration(rec.Type, lastSeen, a.cfg.Scoring)
		expiresAt = &computed
	}

	return &intel.NormalizedIndicator{
		Type:            rec.Type,
		Value:           rec.Value,
		NormalizedValue: normalized,
		Confidence:      &confidence,
		Severity:        rec.Severity,
		FirstSeen:       firstSeen,
		LastSeen:        lastSeen,
		ExpiresAt:       expiresAt,
		Source:          a.source,
		Description:     rec.Description,
		Tags:            rec.Tags,
		Metadata: map[string]any{
			"custom": true,
		},
	}
}

// Health probes the feed URL with a single attempt.
func (a *CustomAdapter) Health(ctx context.Context) Health {
	resp, err := a.client.FetchWithRetry(ctx, outbound.Request{
		URL:         a.url,
		Headers:     a.headers,
		Timeout:     a.cfg.Ingestion.Timeout,
		MaxRetries:  1,
		BaseBackoff: a.cfg.Ingestion.BaseBackoff,
	})
	if err != nil {
		return Health{OK: false, Message: err.Error()}
	}
	if !resp.OK() {
		return Health{OK: false, Message: fmt.Sprintf("Custom feed status %d", resp.StatusCode)}
	}
	return Health{OK: true, Message: "Custom feed reachable"}
}

// ============================================================================
// Row parsing
// ============================================================================

type customJSONRow struct {
	Type        string   `json:"type"`
	Value       string   `json:"value"`
	Indicator   string   `json:"indicator"`
	Confidence  *int     `json:"confidence"`
	Severity    string   `json:"severity"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	FirstSeen   string   `json:"firstSeen"`
	FirstSeenS  string   `json:"first_seen"`
	LastSeen    string   `json:"lastSeen"`
	LastSeenS   string   `json:"last_seen"`
	ExpiresAt   string   `json:"expiresAt"`
}

// parseJSONRecords accepts either a bare array or an object with a "data"
// array, the two shapes custom feeds ship in practice.
func parseJSONRecords(body []byte, now time.Time) ([]CustomRecord, error) {
	var rows []customJSONRow
	if err := json.Unmarshal(body, &rows); err != nil {
		var wrapper struct {
			Data []customJSONRow `json:"data"`
		}
		if err := json.Unmarshal(body, &wrapper); err != nil {
			return nil, fmt.Errorf("unrecognized payload shape: %w", err)
		}
		rows = wrapper.Data
	}

	var records []CustomRecord
	for _, row := range rows {
		value := row.Value
		if value == "" {
			value = row.Indicator
		}
		if value == "" {
			continue
		}

		firstSeen := parseDateOr(firstNonEmpty(row.FirstSeen, row.FirstSeenS), now)
		lastSeen := parseDateOr(firstNonEmpty(row.LastSeen, row.LastSeenS), firstSeen)

		var expiresAt *time.Time
		if row.ExpiresAt != "" {
			parsed := parseDateOr(row.ExpiresAt, lastSeen)
			expiresAt = &parsed
		}

		records = append(records, CustomRecord{
			Type:        resolveRowType(row.Type, value),
			Value:       value,
			Confidence:  row.Confidence,
			Severity:    intel.ParseSeverity(row.Severity),
			Description: row.Description,
			Tags:        row.Tags,
			FirstSeen:   firstSeen,
			LastSeen:    lastSeen,
			ExpiresAt:   expiresAt,
		})
	}

	return records, nil
}

// parseCSVRecords handles the loose CSV dialect custom feeds use: quoted
// fields with doubled-quote escapes, case-insensitive headers, and value
// columns named value, indicator, or ioc. Rows without a value are dropped.
func parseCSVRecords(content string, now time.Time) []CustomRecord {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 2 {
		return nil
	}

	headers := parseCSVLine(lines[0])
	for i := range headers {
		headers[i] = strings.ToLower(headers[i])
	}

	var records []CustomRecord
	for _, line := range lines[1:] {
		values := parseCSVLine(line)
		row := make(map[string]string, len(headers))
		for i, header := range headers {
			if i < len(values) {
				row[header] = values[i]
			} else {
				row[header] = ""
			}
		}

		value := firstNonEmpty(row["value"], row["indicator"], row["ioc"])
		if value == "" {
			continue
		}

		var confidence *int
		if row["confidence"] != "" {
			if parsed, err := strconv.Atoi(row["confidence"]); err == nil {
				confidence = &parsed
			}
		}

		var tags []string
		if row["tags"] != "" {
			for _, tag := range strings.Split(row["tags"], "|") {
				if tag = strings.TrimSpace(tag); tag != "" {
					tags = append(tags, tag)
				}
			}
		}

		firstSeen := parseDateOr(firstNonEmpty(row["first_seen"], row["firstseen"]), now)
		lastSeen := parseDateOr(firstNonEmpty(row["last_seen"], row["lastseen"]), firstSeen)

		var expiresAt *time.Time
		if row["expires_at"] != "" {
			parsed := parseDateOr(row["expires_at"], lastSeen)
			expiresAt = &parsed
		}

		records = append(records, CustomRecord{
			Type:        resolveRowType(row["type"], value),
			Value:       value,
			Confidence:  confidence,
			Severity:    intel.ParseSeverity(row["severity"]),
			Description: row["description"],
			Tags:        tags,
			FirstSeen:   firstSeen,
			LastSeen:    lastSeen,
			ExpiresAt:   expiresAt,
		})
	}

	return records
}

func parseCSVLine(line string) []string {
	var values []string
	var current strings.Builder
	inQuotes := false

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		char := runes[i]

		if char == '"' {
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				current.WriteRune('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
			continue
		}

		if char == ',' && !inQuotes {
			values = append(values, strings.TrimSpace(current.String()))
			current.Reset()
			continue
		}

		current.WriteRune(char)
	}

	values = append(values, strings.TrimSpace(current.String()))
	return values
}

// resolveRowType honors a recognized declared type and falls back to
// structural guessing for anything else.
func resolveRowType(declared, value string) intel.IndicatorType {
	if declared != "" {
		if parsed := ioc.ParseType(strings.ToUpper(declared)); parsed != "" {
			return parsed
		}
	}
	return ioc.GuessType(value)
}

func parseDateOr(raw string, fallback time.Time) time.Time {
	if raw == "" {
		return fallback
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
