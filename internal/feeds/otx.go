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

type otxIndicator struct {
	Indicator string `json:"indicator"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Created   string `json:"created"`
}

type otxPulse struct {
	ID         string         `json:"id"`
	Modified   string         `json:"modified"`
	Created    string         `json:"created"`
	Name       string         `json:"name"`
	Tags       []string       `json:"tags"`
	Indicators []otxIndicator `json:"indicators"`
}

type otxPulsePage struct {
	Results []otxPulse `json:"results"`
}

// OTXRecord is one indicator flattened out of its parent pulse.
type OTXRecord struct {
	PulseID        string
	PulseName      string
	IndicatorValue string
	IndicatorType  string
	Tags           []string
	CreatedAt      string // RFC3339, empty when the pulse carried no date
}

// mapOTXType translates AlienVault indicator types to canonical ones.
// Unmapped types are skipped.
func mapOTXType(otxType string) intel.IndicatorType {
	switch strings.ToLower(otxType) {
	case "ipv4", "ipv6":
		return intel.TypeIPAddress
	case "domain":
		return intel.TypeDomain
	case "url":
		return intel.TypeURL
	case "filehash-md5":
		return intel.TypeFileHashMD5
	case "filehash-sha1":
		return intel.TypeFileHashSHA1
	case "filehash-sha256":
		return intel.TypeFileHashSHA256
	case "email":
		return intel.TypeEmail
	case "cve":
		return intel.TypeCVE
	case "useragent":
		return intel.TypeUserAgent
	default:
		return ""
	}
}

// OTXAdapter ingests subscribed pulses from AlienVault OTX.
type OTXAdapter struct {
	cfg    *config.Config
	client *outbound.Client
}

// NewOTXAdapter builds the AlienVault OTX adapter.
func NewOTXAdapter(cfg *config.Config, client *outbound.Client) *OTXAdapter {
	return &OTXAdapter{cfg: cfg, client: client}
}

func (a *OTXAdapter) Source() string           { return SourceOTX }
func (a *OTXAdapter) FeedType() intel.FeedType { return intel.FeedTypeIOC }

func (a *OTXAdapter) baseURL() string {
	if a.cfg.Feeds.OTXBaseURL != "" {
		return a.cfg.Feeds.OTXBaseURL
	}
	return "https://otx.alienvault.com"
}

// FetchSince pulls the subscribed pulse page and flattens its indicators.
// A missing API key is a warning, not an error: the run records it and
// moves on with zero records.
func (a *OTXAdapter) FetchSince(ctx context.Context, checkpoint string) (*FetchResult, error) {
	apiKey := a.cfg.Feeds.OTXAPIKey()
	if apiKey == "" {
		return &FetchResult{Warnings: []string{"OTX_API_KEY not configured"}}, nil
	}

	var page otxPulsePage
	err := a.client.FetchJSON(ctx, outbound.Request{
		URL: fmt.Sprintf("%s/api/v1/pulses/subscribed?limit=50", a.baseURL()),
		Headers: map[string]string{
			"X-OTX-API-KEY": apiKey,
			"Accept":        "application/json",
		},
		Timeout:     a.cfg.Ingestion.Timeout,
		MaxRetries:  a.cfg.Ingestion.MaxRetries,
		BaseBackoff: a.cfg.Ingestion.BaseBackoff,
	}, &page)
	if err != nil {
		return nil, fmt.Errorf("fetching OTX pulses: %w", err)
	}

	var records []any
	for _, pulse := range page.Results {
		pulseName := pulse.Name
		if pulseName == "" {
			pulseName = "OTX Pulse"
		}
		for _, indicator := range pulse.Indicators {
			if indicator.Indicator == "" || indicator.Type == "" {
				continue
			}
			createdAt := indicator.Created
			if createdAt == "" {
				createdAt = pulse.Modified
			}
			if createdAt == "" {
				createdAt = pulse.Created
			}
			records = append(records, OTXRecord{
				PulseID:        pulse.ID,
				PulseName:      pulseName,
				IndicatorValue: indicator.Indicator,
				IndicatorType:  indicator.Type,
				Tags:           pulse.Tags,
				CreatedAt:      createdAt,
			})
		}
	}

	return &FetchResult{
		Records:    records,
		Checkpoint: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// Normalize converts one OTX record, or returns nil when the type is
// unmapped or the value fails validation.
func (a *OTXAdapter) Normalize(record any, nctx Context) *intel.NormalizedIndicator {
	rec, ok := record.(OTXRecord)
	if !ok {
		return nil
	}

	indicatorType := mapOTXType(rec.IndicatorType)
	if indicatorType == "" {
		return nil
	}

	normalized := ioc.NormalizeValue(indicatorType, rec.IndicatorValue)
	if !ioc.IsValidValue(indicatorType, normalized) {
		return nil
	}

	firstSeen := time.Now().UTC()
	if rec.CreatedAt != "" {
		if created, err := time.Parse(time.RFC3339, rec.CreatedAt); err == nil {
			firstSeen = created
		}
	}

	confidence := ioc.CalculateConfidence(ioc.ConfidenceInput{
		Source:    SourceOTX,
		FirstSeen: &firstSeen,
		LastSeen:  &firstSeen,
		Severity:  intel.SeverityMedium,
	})
	expires := ioc.CalculateExpiration(indicatorType, firstSeen, a.cfg.Scoring)

	return &intel.NormalizedIndicator{
		Type:            indicatorType,
		Value:           rec.IndicatorValue,
		NormalizedValue: normalized,
		Confidence:      &confidence,
		Severity:        intel.SeverityMedium,
		FirstSeen:       firstSeen,
		LastSeen:        firstSeen,
		ExpiresAt:       &expires,
		Source:          SourceOTX,
		Description:     fmt.Sprintf("%s (%s)", rec.PulseName, rec.PulseID),
		Tags:            append(append([]string{}, rec.Tags...), "otx"),
		Metadata: map[string]any{
			"pulseId": rec.PulseID,
		},
	}
}

// Health probes the subscribed-pulses endpoint with a single-item page.
func (a *OTXAdapter) Health(ctx context.Context) Health {
	apiKey := a.cfg.Feeds.OTXAPIKey()
	if apiKey == "" {
		return Health{OK: false, Message: "OTX API key missing"}
	}

	var probe struct {
		Detail string `json:"detail"`
	}
	err := a.client.FetchJSON(ctx, outbound.Request{
		URL: fmt.Sprintf("%s/api/v1/pulses/subscribed?limit=1", a.baseURL()),
		Headers: map[string]string{
			"X-OTX-API-KEY": apiKey,
			"Accept":        "application/json",
		},
		Timeout:     a.cfg.Ingestion.Timeout,
		MaxRetries:  1,
		BaseBackoff: a.cfg.Ingestion.BaseBackoff,
	}, &probe)
	if err != nil {
		return Health{OK: false, Message: err.Error()}
	}
	return Health{OK: true, Message: "OTX reachable"}
}
