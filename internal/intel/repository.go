package intel

import (
	"context"
	"errors"
	"time"
)

// Common repository errors.
var (
	ErrFeedNotFound      = errors.New("threat feed not found")
	ErrRunNotFound       = errors.New("feed run not found")
	ErrIndicatorNotFound = errors.New("threat indicator not found")
	ErrMatchNotFound     = errors.New("indicator match not found")
	ErrTechniqueNotFound = errors.New("attack technique not found")
)

// UpsertResult reports whether an upsert created a new row. The explicit flag
// exists so callers never have to infer creation from timestamp equality.
type UpsertResult[T any] struct {
	Row        T
	WasCreated bool
}

// Repository is the persistence boundary for the whole engine. The engine
// never issues storage queries itself; implementations live in the store
// package (in-memory and Redis).
type Repository interface {
	// Feed lifecycle.
	UpsertFeed(ctx context.Context, orgID string, input FeedUpsert) (*ThreatFeed, error)
	ListFeeds(ctx context.Context, orgID string) ([]*ThreatFeed, error)
	UpdateFeed(ctx context.Context, orgID, feedID string, update FeedUpdate) (*ThreatFeed, error)
	SeedDefaultFeeds(ctx context.Context, orgID string) error

	// Run lifecycle. CreateFeedRun opens a RUNNING row; FinishFeedRun
	// transitions it to SUCCESS or PARTIAL exactly once; MarkStaleFeedRuns
	// reconciles RUNNING rows started before staleBefore to PARTIAL and
	// returns how many were reconciled.
	CreateFeedRun(ctx context.Context, orgID, feedID string) (*ThreatFeedRun, error)
	FinishFeedRun(ctx context.Context, runID string, summary RunSummary) (*ThreatFeedRun, error)
	MarkStaleFeedRuns(ctx context.Context, orgID, feedID string, staleBefore time.Time) (int, error)
	ListRecentFeedRuns(ctx context.Context, orgID string, limit int) ([]*ThreatFeedRun, error)

	// Indicators. UpsertIndicator keys on (org, type, normalizedValue, feed):
	// an existing row keeps its FirstSeen and gets value/confidence/severity/
	// lastSeen/expiry/tags/description/metadata refreshed.
	UpsertIndicator(ctx context.Context, orgID, feedID string, in NormalizedIndicator) (UpsertResult[*ThreatIndicator], error)
	ListIndicators(ctx context.Context, orgID string, filters IndicatorFilters) ([]*ThreatIndicator, error)
	GetIndicator(ctx context.Context, orgID, indicatorID string) (*ThreatIndicator, error)

	// Matches. UpsertIndicatorMatch keys on (indicator, asset, matchField);
	// an existing row gets LastMatchedAt/confidence refreshed.
	UpsertIndicatorMatch(ctx context.Context, input MatchInput) (UpsertResult[*ThreatIndicatorMatch], error)
	ListIndicatorMatches(ctx context.Context, orgID string) ([]*ThreatIndicatorMatch, error)
	SetMatchStatus(ctx context.Context, orgID, matchID string, status MatchStatus) (*ThreatIndicatorMatch, error)

	// ATT&CK knowledge base (shared, not per-organization).
	UpsertAttackTactic(ctx context.Context, tactic AttackTactic) (*AttackTactic, error)
	UpsertAttackTechnique(ctx context.Context, technique AttackTechnique) (*AttackTechnique, error)
	LinkTechniqueTactic(ctx context.Context, techniqueID, tacticID string) error
	UpsertThreatActor(ctx context.Context, actor ThreatActor) (*ThreatActor, error)
	UpsertThreatCampaign(ctx context.Context, campaign ThreatCampaign) (*ThreatCampaign, error)
	LinkActorTechnique(ctx context.Context, actorID, techniqueID string) error
	LinkCampaignTechnique(ctx context.Context, campaignID, techniqueID string) error
	LinkCampaignActor(ctx context.Context, campaignID, actorID string) error
	FindTechniqueByExternalID(ctx context.Context, externalID string) (*AttackTechnique, error)
	ListActorsUsingTechnique(ctx context.Context, techniqueExternalID string) ([]*ThreatActor, error)

	// Vulnerability links.
	UpsertVulnerabilityTechnique(ctx context.Context, mapping TechniqueMapping) error
	UpsertVulnerabilityActor(ctx context.Context, link ActorLink) error

	// External collaborators consumed read-only.
	ListOrgAssets(ctx context.Context, orgID string) ([]*Asset, error)
	ListOrgVulnerabilities(ctx context.Context, orgID string) ([]*Vulnerability, error)

	// Alerting.
	ListAlertRecipients(ctx context.Context, orgID string) ([]string, error)
	CreateNotifications(ctx context.Context, orgID string, notifications []Notification) error
}
