// Package orchestrator drives the full sync cycle for an organization:
// seed the default feed catalog, reconcile stale runs, pull every active
// feed through its adapter (or the ATT&CK service for the MITRE feed), and
// finish with a correlation pass.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vantran-sec/threatsync/internal/config"
	"github.com/vantran-sec/threatsync/internal/correlation"
	"github.com/vantran-sec/threatsync/internal/feeds"
	"github.com/vantran-sec/threatsync/internal/intel"
	"github.com/vantran-sec/threatsync/internal/metrics"
	"github.com/vantran-sec/threatsync/internal/mitre"
)

// ErrFeaturesDisabled is returned when a sync is requested with the threat
// intelligence feature flag off.
var ErrFeaturesDisabled = errors.New("Threat intelligence features are disabled")

// AttackSyncer is the ATT&CK knowledge-base sync surface the orchestrator
// needs. Satisfied by *mitre.Service.
type AttackSyncer interface {
	Sync(ctx context.Context, orgID, checkpoint string) (*mitre.SyncSummary, error)
}

// Correlator runs one indicator-to-asset correlation pass. Satisfied by
// *correlation.Engine.
type Correlator interface {
	Run(ctx context.Context, orgID string) (*correlation.Summary, error)
}

// AdapterResolver resolves feed adapters. Satisfied by *feeds.Registry.
type AdapterResolver interface {
	ForFeed(feed *intel.ThreatFeed) (feeds.Adapter, error)
}

// Options narrows one sync invocation. The zero value runs a full cycle:
// every active feed, the ATT&CK knowledge base, and a correlation pass.
type Options struct {
	// Source restricts the sync to feeds whose source matches,
	// case-insensitively. Empty syncs everything.
	Source string
	// SkipMitre leaves the ATT&CK knowledge base out of this cycle. The
	// TAXII server is slow, so frequent IOC-only syncs set it.
	SkipMitre bool
	// SkipCorrelation leaves out the post-sync correlation pass.
	SkipCorrelation bool
}

// FeedOutcome is one feed's finished run within a sync cycle.
type FeedOutcome struct {
	FeedID   string               `json:"feed_id"`
	FeedName string               `json:"feed_name"`
	Source   string               `json:"source"`
	Run      *intel.ThreatFeedRun `json:"run"`
}

// SyncResult is the aggregate outcome of one full cycle.
type SyncResult struct {
	Feeds               []FeedOutcome        `json:"feeds"`
	StaleRunsReconciled int                  `json:"stale_runs_reconciled"`
	Correlation         *correlation.Summary `json:"correlation,omitempty"`
}

// Orchestrator coordinates feed syncs for organizations.
type Orchestrator struct {
	cfg       *config.Config
	repo      intel.Repository
	registry  AdapterResolver
	attack    AttackSyncer
	correlate Correlator
	logger    *zap.Logger
}

// New builds the orchestrator. attack and correlate may be nil when the
// matching feature flags are off.
func New(cfg *config.Config, repo intel.Repository, registry AdapterResolver, attack AttackSyncer, correlate Correlator, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:       cfg,
		repo:      repo,
		registry:  registry,
		attack:    attack,
		correlate: correlate,
		logger:    logger,
	}
}

// SyncAll runs one full cycle for the organization.
func (o *Orchestrator) SyncAll(ctx context.Context, orgID string, opts Options) (*SyncResult, error) {
	if !o.cfg.Features.Enabled {
		return nil, ErrFeaturesDisabled
	}

	started := time.Now()
	defer func() {
		metrics.SyncDuration.Observe(time.Since(started).Seconds())
	}()

	if err := o.repo.SeedDefaultFeeds(ctx, orgID); err != nil {
		return nil, fmt.Errorf("seeding default feeds: %w", err)
	}

	allFeeds, err := o.repo.ListFeeds(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}

	result := &SyncResult{}
	staleBefore := time.Now().UTC().Add(-o.cfg.StaleRunWindow())

	for _, feed := range allFeeds {
		if !feed.IsActive {
			continue
		}
		if opts.Source != "" && !strings.EqualFold(opts.Source, feed.Source) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		reconciled, err := o.repo.MarkStaleFeedRuns(ctx, orgID, feed.ID, staleBefore)
		if err != nil {
			o.logger.Warn("stale run reconciliation failed",
				zap.String("feed", feed.Name),
				zap.Error(err))
		}
		result.StaleRunsReconciled += reconciled

		// One feed's failure never aborts its siblings or the
		// correlation pass.
		run, err := o.syncFeed(ctx, orgID, feed, opts)
		if err != nil {
			o.logger.Error("feed sync failed",
				zap.String("feed", feed.Name),
				zap.Error(err))
		}
		if run == nil {
			continue
		}
		metrics.FeedSyncs.WithLabelValues(feed.Source, string(run.Status)).Inc()
		result.Feeds = append(result.Feeds, FeedOutcome{
			FeedID:   feed.ID,
			FeedName: feed.Name,
			Source:   feed.Source,
			Run:      run,
		})
	}

	if !opts.SkipCorrelation && o.cfg.Features.IOCCorrelationEnabled && o.correlate != nil {
		summary, err := o.correlate.Run(ctx, orgID)
		if err != nil {
			o.logger.Warn("correlation pass failed",
				zap.String("organization", orgID),
				zap.Error(err))
		} else {
			metrics.CorrelationMatches.WithLabelValues("created").Add(float64(summary.MatchesCreated))
			metrics.CorrelationMatches.WithLabelValues("updated").Add(float64(summary.MatchesUpdated))
			metrics.AlertsGenerated.Add(float64(summary.AlertsGenerated))
			result.Correlation = summary
		}
	}

	return result, nil
}

// syncFeed runs one feed and guarantees its run row is finished exactly
// once, even when the fetch panics.
func (o *Orchestrator) syncFeed(ctx context.Context, orgID string, feed *intel.ThreatFeed, opts Options) (run *intel.ThreatFeedRun, err error) {
	created, err := o.repo.CreateFeedRun(ctx, orgID, feed.ID)
	if err != nil {
		return nil, fmt.Errorf("creating run for %s: %w", feed.Name, err)
	}

	finished := false
	finish := func(summary intel.RunSummary) (*intel.ThreatFeedRun, error) {
		finished = true
		return o.repo.FinishFeedRun(ctx, created.ID, summary)
	}
	defer func() {
		if r := recover(); r != nil {
			if !finished {
				if finishedRun, finishErr := o.repo.FinishFeedRun(ctx, created.ID, intel.RunSummary{
					Errors: []string{fmt.Sprintf("Sync panicked: %v", r)},
				}); finishErr == nil {
					run = finishedRun
				}
			}
			err = fmt.Errorf("sync of %s panicked: %v", feed.Name, r)
		}
	}()

	if strings.EqualFold(feed.Source, feeds.SourceMITREAttack) {
		return o.syncMitreFeed(ctx, orgID, feed, opts, finish)
	}

	adapter, err := o.registry.ForFeed(feed)
	if err != nil {
		return finish(intel.RunSummary{
			Errors: []string{fmt.Sprintf("Failed to build adapter for %s: %v", feed.Source, err)},
		})
	}
	if adapter == nil {
		return finish(intel.RunSummary{
			Errors: []string{fmt.Sprintf("No adapter available for source %s", feed.Source)},
		})
	}

	fetched, err := adapter.FetchSince(ctx, feed.Checkpoint)
	if err != nil {
		return finish(intel.RunSummary{
			Errors: []string{fmt.Sprintf("Failed to fetch from %s: %v", feed.Source, err)},
		})
	}

	summary := intel.RunSummary{
		Fetched:    len(fetched.Records),
		Errors:     append([]string(nil), fetched.Warnings...),
		Checkpoint: fetched.Checkpoint,
	}

	nctx := feeds.Context{OrganizationID: orgID, SourceName: feed.Source}
	for _, record := range fetched.Records {
		normalized := adapter.Normalize(record, nctx)
		if normalized == nil {
			summary.Skipped++
			continue
		}
		upserted, err := o.repo.UpsertIndicator(ctx, orgID, feed.ID, *normalized)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Failed to store indicator %s: %v", normalized.Value, err))
			continue
		}
		if upserted.WasCreated {
			summary.Created++
		} else {
			summary.Updated++
		}
	}
	metrics.IndicatorsUpserted.WithLabelValues(feed.Source, "created").Add(float64(summary.Created))
	metrics.IndicatorsUpserted.WithLabelValues(feed.Source, "updated").Add(float64(summary.Updated))
	metrics.IndicatorsSkipped.WithLabelValues(feed.Source).Add(float64(summary.Skipped))

	o.updateFeedCheckpoint(ctx, orgID, feed, summary.Checkpoint)
	return finish(summary)
}

// syncMitreFeed handles the knowledge-base feed. When the cycle excludes
// MITRE, or the ATT&CK matrix feature is off, the run finishes empty and
// successful so the catalog entry still shows a heartbeat.
func (o *Orchestrator) syncMitreFeed(ctx context.Context, orgID string, feed *intel.ThreatFeed, opts Options, finish func(intel.RunSummary) (*intel.ThreatFeedRun, error)) (*intel.ThreatFeedRun, error) {
	if opts.SkipMitre || !o.cfg.Features.AttackMatrixEnabled || o.attack == nil {
		return finish(intel.RunSummary{})
	}

	summary, err := o.attack.Sync(ctx, orgID, feed.Checkpoint)
	if err != nil {
		return finish(intel.RunSummary{
			Errors: []string{fmt.Sprintf("Failed to sync MITRE ATT&CK: %v", err)},
		})
	}

	fetched := summary.Tactics + summary.Techniques + summary.Actors + summary.Campaigns
	updated := summary.TacticTechniqueLinks + summary.ActorTechniqueLinks +
		summary.CampaignTechniqueLinks + summary.CampaignActorLinks +
		summary.VulnerabilityTechniqueLinks + summary.VulnerabilityActorLinks

	o.updateFeedCheckpoint(ctx, orgID, feed, summary.Checkpoint)
	return finish(intel.RunSummary{
		Fetched:    fetched,
		Created:    fetched,
		Updated:    updated,
		Errors:     summary.Errors,
		Checkpoint: summary.Checkpoint,
	})
}

func (o *Orchestrator) updateFeedCheckpoint(ctx context.Context, orgID string, feed *intel.ThreatFeed, checkpoint string) {
	now := time.Now().UTC()
	update := intel.FeedUpdate{LastSync: &now}
	if checkpoint != "" {
		update.Checkpoint = &checkpoint
	}
	if _, err := o.repo.UpdateFeed(ctx, orgID, feed.ID, update); err != nil {
		o.logger.Warn("feed checkpoint update failed",
			zap.String("feed", feed.Name),
			zap.Error(err))
	}
}
