// Package correlation scans organization assets against the live indicator
// set and records matches, alerting security staff on new high-confidence
// hits.
package correlation

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vantran-sec/threatsync/internal/config"
	"github.com/vantran-sec/threatsync/internal/intel"
	"github.com/vantran-sec/threatsync/internal/ioc"
)

// maxConcurrentIndicators bounds the correlation worker pool.
const maxConcurrentIndicators = 8

// Summary reports one correlation pass.
type Summary struct {
	ScannedIndicators int `json:"scanned_indicators"`
	ScannedAssets     int `json:"scanned_assets"`
	MatchesCreated    int `json:"matches_created"`
	MatchesUpdated    int `json:"matches_updated"`
	AlertsGenerated   int `json:"alerts_generated"`
}

// candidate is one comparable value pulled off an asset.
type candidate struct {
	field string
	value string
}

// Engine correlates indicators against assets. Each asset value is
// normalized under the indicator's own type and compared exactly against the
// indicator's normalized form, so folding only applies where the type's
// normalization rules fold.
type Engine struct {
	cfg    *config.Config
	repo   intel.Repository
	logger *zap.Logger
}

// NewEngine builds the correlation engine.
func NewEngine(cfg *config.Config, repo intel.Repository, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, repo: repo, logger: logger}
}

// assetCandidates extracts every comparable value from an asset: the fixed
// ipAddress/hostname/name fields plus any string reachable through the
// metadata document.
func assetCandidates(asset *intel.Asset) []candidate {
	var candidates []candidate
	if asset.IPAddress != "" {
		candidates = append(candidates, candidate{field: "ipAddress", value: asset.IPAddress})
	}
	if asset.Hostname != "" {
		candidates = append(candidates, candidate{field: "hostname", value: asset.Hostname})
	}
	if asset.Name != "" {
		candidates = append(candidates, candidate{field: "name", value: asset.Name})
	}
	candidates = append(candidates, metadataCandidates(asset.Metadata)...)
	return candidates
}

// metadataCandidates walks the metadata document for strings. Every hit
// carries the flat field name "metadata" so the match natural key stays
// stable when the document is reshaped around the same value.
func metadataCandidates(value any) []candidate {
	switch typed := value.(type) {
	case string:
		if typed != "" {
			return []candidate{{field: "metadata", value: typed}}
		}
	case map[string]any:
		var out []candidate
		for _, nested := range typed {
			out = append(out, metadataCandidates(nested)...)
		}
		return out
	case []any:
		var out []candidate
		for _, nested := range typed {
			out = append(out, metadataCandidates(nested)...)
		}
		return out
	}
	return nil
}

// Run executes one correlation pass over every live indicator and every
// organization asset.
func (e *Engine) Run(ctx context.Context, orgID string) (*Summary, error) {
	indicators, err := e.repo.ListIndicators(ctx, orgID, intel.IndicatorFilters{})
	if err != nil {
		return nil, fmt.Errorf("listing indicators: %w", err)
	}
	assets, err := e.repo.ListOrgAssets(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}

	summary := &Summary{
		ScannedIndicators: len(indicators),
		ScannedAssets:     len(assets),
	}
	if len(indicators) == 0 || len(assets) == 0 {
		return summary, nil
	}

	candidatesByAsset := make(map[string][]candidate, len(assets))
	for _, asset := range assets {
		candidatesByAsset[asset.ID] = assetCandidates(asset)
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentIndicators)

	for _, indicator := range indicators {
		indicator := indicator
		group.Go(func() error {
			for _, asset := range assets {
				for _, cand := range candidatesByAsset[asset.ID] {
					normalized := ioc.NormalizeValue(indicator.Type, cand.value)
					if normalized == "" || normalized != indicator.NormalizedValue {
						continue
					}

					result, err := e.repo.UpsertIndicatorMatch(groupCtx, intel.MatchInput{
						IndicatorID:    indicator.ID,
						AssetID:        asset.ID,
						OrganizationID: orgID,
						MatchField:     cand.field,
						MatchValue:     cand.value,
						Confidence:     indicator.Confidence,
						Status:         intel.MatchStatusActive,
					})
					if err != nil {
						return fmt.Errorf("recording match for %s: %w", indicator.Value, err)
					}

					mu.Lock()
					if result.WasCreated {
						summary.MatchesCreated++
					} else {
						summary.MatchesUpdated++
					}
					mu.Unlock()

					if result.WasCreated && e.highConfidence(indicator) {
						alerts := e.notify(groupCtx, orgID, indicator, asset, cand.field)
						mu.Lock()
						summary.AlertsGenerated += alerts
						mu.Unlock()
					}
				}
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return summary, nil
}

func (e *Engine) highConfidence(indicator *intel.ThreatIndicator) bool {
	return indicator.Confidence != nil && *indicator.Confidence >= e.cfg.Scoring.HighConfidenceThreshold
}

// notify fans an alert out to the organization's security roles. Delivery
// failures are logged and swallowed: a broken notification channel must not
// fail the correlation pass.
func (e *Engine) notify(ctx context.Context, orgID string, indicator *intel.ThreatIndicator, asset *intel.Asset, field string) int {
	recipients, err := e.repo.ListAlertRecipients(ctx, orgID)
	if err != nil {
		e.logger.Warn("listing alert recipients failed",
			zap.String("organization", orgID),
			zap.Error(err))
		return 0
	}
	if len(recipients) == 0 {
		return 0
	}

	notifications := make([]intel.Notification, 0, len(recipients))
	for _, userID := range recipients {
		notifications = append(notifications, intel.Notification{
			UserID:  userID,
			Title:   "High-confidence IOC match",
			Message: fmt.Sprintf("%s matched asset %s (%s).", indicator.NormalizedValue, asset.Name, field),
			Type:    "WARNING",
			Link:    "/threats",
		})
	}
	if err := e.repo.CreateNotifications(ctx, orgID, notifications); err != nil {
		e.logger.Warn("queueing match notifications failed",
			zap.String("indicator", indicator.Value),
			zap.Error(err))
		return 0
	}
	return len(notifications)
}
