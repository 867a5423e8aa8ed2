// Package feeds contains one adapter per external threat intelligence
// source. Every adapter fetches raw records through the guarded outbound
// transport and normalizes them into the canonical indicator shape; the sync
// orchestrator drives them all through the same contract.
package feeds

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/vantran-sec/threatsync/internal/config"
	"github.com/vantran-sec/threatsync/internal/intel"
	"github.com/vantran-sec/threatsync/internal/outbound"
	"github.com/vantran-sec/threatsync/internal/secrets"
)

// FetchResult is the raw output of one incremental fetch. Warnings cover
// expected, benign conditions (missing API key, degraded source status) that
// should surface on the run without failing it.
type FetchResult struct {
	Records    []any
	Checkpoint string
	Warnings   []string
}

// Context identifies who a record is being normalized for.
type Context struct {
	OrganizationID string
	SourceName     string
}

// Health is an adapter's self-reported reachability. Health checks never
// return an error; failures land in OK=false with a message.
type Health struct {
	OK      bool
	Message string
}

// Adapter is the capability set every feed source implements.
//
// FetchSince errors propagate to the orchestrator and fail the run.
// Normalize returning nil means "skip this record", not an error.
type Adapter interface {
	Source() string
	FeedType() intel.FeedType
	FetchSince(ctx context.Context, checkpoint string) (*FetchResult, error)
	Normalize(record any, nctx Context) *intel.NormalizedIndicator
	Health(ctx context.Context) Health
}

// Registry resolves adapters by feed source. Named sources map to their
// dedicated adapters; any other source with a configured URL falls back to
// the custom feed adapter. New sources are added here without touching the
// orchestrator.
type Registry struct {
	cfg    *config.Config
	client *outbound.Client
	sealer *secrets.Sealer
	logger *zap.Logger
}

// NewRegistry builds the adapter registry.
func NewRegistry(cfg *config.Config, client *outbound.Client, sealer *secrets.Sealer, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{cfg: cfg, client: client, sealer: sealer, logger: logger}
}

// ForFeed resolves an adapter for the feed, or nil when no adapter can serve
// it. MITRE_ATTACK returns nil deliberately: it populates knowledge-base
// tables, not indicator rows, and is special-cased by the orchestrator.
func (r *Registry) ForFeed(feed *intel.ThreatFeed) (Adapter, error) {
	switch strings.ToUpper(feed.Source) {
	case SourceOTX:
		return NewOTXAdapter(r.cfg, r.client), nil
	case SourceCIRCL:
		return NewCIRCLAdapter(r.cfg, r.client), nil
	case SourceURLHaus:
		return NewURLHausAdapter(r.cfg, r.client), nil
	case SourceMalwareBazaar:
		return NewMalwareBazaarAdapter(r.cfg, r.client), nil
	case SourceMITREAttack:
		return nil, nil
	default:
		if feed.URL == "" {
			return nil, nil
		}

		apiKey := ""
		if feed.APIKey != "" && r.sealer != nil {
			opened, err := r.sealer.Open(feed.APIKey)
			if err != nil {
				return nil, err
			}
			apiKey = opened
		}

		return NewCustomAdapter(r.cfg, r.client, CustomOptions{
			Source:  feed.Source,
			URL:     feed.URL,
			Format:  feed.Format,
			APIKey:  apiKey,
			Headers: customHeaders(feed.Metadata),
		}), nil
	}
}

// Source identifiers shared with the scoring trust table and feed seeding.
const (
	SourceOTX           = "ALIENVAULT_OTX"
	SourceCIRCL         = "CIRCL"
	SourceURLHaus       = "URLHAUS"
	SourceMalwareBazaar = "MALWAREBAZAAR"
	SourceMITREAttack   = "MITRE_ATTACK"
)

func customHeaders(metadata map[string]any) map[string]string {
	raw, ok := metadata["headers"].(map[string]any)
	if !ok {
		return nil
	}
	headers := make(map[string]string, len(raw))
	for key, value := range raw {
		if s, ok := value.(string); ok {
			headers[key] = s
		}
	}
	return headers
}
