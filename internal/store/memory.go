// Package store provides the two intel.Repository implementations: an
// in-memory store used by tests and single-node deployments, and a
// Redis-backed store for anything that needs persistence.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vantran-sec/threatsync/internal/intel"
)

// AlertRoles are the user roles that receive high-confidence match alerts.
var AlertRoles = []string{"MAIN_OFFICER", "IT_OFFICER", "ANALYST"}

type memoryUser struct {
	ID   string
	Role string
}

// MemoryStore is a mutex-guarded, map-backed Repository. It is the
// reference implementation the Redis store mirrors, and the double every
// engine test runs against.
type MemoryStore struct {
	mu sync.Mutex

	feeds      map[string]*intel.ThreatFeed
	runs       map[string]*intel.ThreatFeedRun
	indicators map[string]*intel.ThreatIndicator
	matches    map[string]*intel.ThreatIndicatorMatch

	tactics    map[string]*intel.AttackTactic    // keyed by externalId
	techniques map[string]*intel.AttackTechnique // keyed by externalId
	actors     map[string]*intel.ThreatActor
	campaigns  map[string]*intel.ThreatCampaign

	techniqueTactics map[[2]string]struct{} // (techniqueId, tacticId)
	actorTechniques  map[[2]string]struct{} // (actorId, techniqueId)
	campaignTechs    map[[2]string]struct{} // (campaignId, techniqueId)

	vulnTechniques map[[3]string]*intel.TechniqueMapping // (vulnId, techniqueExternalId, source)
	vulnActors     map[[3]string]*intel.ActorLink        // (vulnId, actorId, source)

	assets          map[string][]*intel.Asset         // orgID -> assets
	vulnerabilities map[string][]*intel.Vulnerability // orgID -> vulns
	users           map[string][]memoryUser           // orgID -> users
	notifications   map[string][]intel.Notification   // orgID -> queued
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		feeds:            make(map[string]*intel.ThreatFeed),
		runs:             make(map[string]*intel.ThreatFeedRun),
		indicators:       make(map[string]*intel.ThreatIndicator),
		matches:          make(map[string]*intel.ThreatIndicatorMatch),
		tactics:          make(map[string]*intel.AttackTactic),
		techniques:       make(map[string]*intel.AttackTechnique),
		actors:           make(map[string]*intel.ThreatActor),
		campaigns:        make(map[string]*intel.ThreatCampaign),
		techniqueTactics: make(map[[2]string]struct{}),
		actorTechniques:  make(map[[2]string]struct{}),
		campaignTechs:    make(map[[2]string]struct{}),
		vulnTechniques:   make(map[[3]string]*intel.TechniqueMapping),
		vulnActors:       make(map[[3]string]*intel.ActorLink),
		assets:           make(map[string][]*intel.Asset),
		vulnerabilities:  make(map[string][]*intel.Vulnerability),
		users:            make(map[string][]memoryUser),
		notifications:    make(map[string][]intel.Notification),
	}
}

// =============================================================================
// Test fixtures
// =============================================================================

// AddAsset registers an organization asset. Assets are owned by the wider
// platform; the store only reads them, so tests seed them directly.
func (s *MemoryStore) AddAsset(orgID string, asset *intel.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	s.assets[orgID] = append(s.assets[orgID], asset)
}

// AddVulnerability registers an organization vulnerability.
func (s *MemoryStore) AddVulnerability(orgID string, vuln *intel.Vulnerability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if vuln.ID == "" {
		vuln.ID = uuid.NewString()
	}
	s.vulnerabilities[orgID] = append(s.vulnerabilities[orgID], vuln)
}

// AddUser registers an organization user with a role.
func (s *MemoryStore) AddUser(orgID, userID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[orgID] = append(s.users[orgID], memoryUser{ID: userID, Role: role})
}

// BackdateRun rewrites a run's start time so tests can age it past the
// stale window.
func (s *MemoryStore) BackdateRun(runID string, startedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[runID]; ok {
		run.StartedAt = startedAt
	}
}

// Notifications returns everything queued for an organization.
func (s *MemoryStore) Notifications(orgID string) []intel.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]intel.Notification, len(s.notifications[orgID]))
	copy(out, s.notifications[orgID])
	return out
}

// =============================================================================
// Feed lifecycle
// =============================================================================

func (s *MemoryStore) UpsertFeed(ctx context.Context, orgID string, input intel.FeedUpsert) (*intel.ThreatFeed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	syncInterval := input.SyncInterval
	if syncInterval == 0 {
		syncInterval = 3600
	}

	for _, feed := range s.feeds {
		if feed.OrganizationID == orgID && feed.Name == input.Name {
			feed.Source = input.Source
			feed.Type = input.Type
			feed.Format = input.Format
			feed.URL = input.URL
			feed.APIKey = input.APIKey
			feed.SyncInterval = syncInterval
			if input.IsActive != nil {
				feed.IsActive = *input.IsActive
			}
			feed.Metadata = input.Metadata
			return copyFeed(feed), nil
		}
	}

	feed := &intel.ThreatFeed{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Name:           input.Name,
		Source:         input.Source,
		Type:           input.Type,
		Format:         input.Format,
		URL:            input.URL,
		APIKey:         input.APIKey,
		SyncInterval:   syncInterval,
		IsActive:       input.IsActive == nil || *input.IsActive,
		Metadata:       input.Metadata,
	}
	s.feeds[feed.ID] = feed
	return copyFeed(feed), nil
}

func (s *MemoryStore) ListFeeds(ctx context.Context, orgID string) ([]*intel.ThreatFeed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var feeds []*intel.ThreatFeed
	for _, feed := range s.feeds {
		if feed.OrganizationID == orgID {
			feeds = append(feeds, copyFeed(feed))
		}
	}
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].Name < feeds[j].Name })
	return feeds, nil
}

func (s *MemoryStore) UpdateFeed(ctx context.Context, orgID, feedID string, update intel.FeedUpdate) (*intel.ThreatFeed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	feed, ok := s.feeds[feedID]
	if !ok || feed.OrganizationID != orgID {
		return nil, intel.ErrFeedNotFound
	}

	if update.IsActive != nil {
		feed.IsActive = *update.IsActive
	}
	if update.SyncInterval != nil {
		feed.SyncInterval = *update.SyncInterval
	}
	if update.Checkpoint != nil {
		feed.Checkpoint = *update.Checkpoint
	}
	if update.APIKey != nil {
		feed.APIKey = *update.APIKey
	}
	if update.URL != nil {
		feed.URL = *update.URL
	}
	if update.Format != nil {
		feed.Format = *update.Format
	}
	if update.LastSync != nil {
		lastSync := *update.LastSync
		feed.LastSync = &lastSync
	}
	return copyFeed(feed), nil
}

func (s *MemoryStore) SeedDefaultFeeds(ctx context.Context, orgID string) error {
	return seedDefaults(ctx, orgID, s.UpsertFeed)
}

// =============================================================================
// Run lifecycle
// =============================================================================

func (s *MemoryStore) CreateFeedRun(ctx context.Context, orgID, feedID string) (*intel.ThreatFeedRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := &intel.ThreatFeedRun{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		FeedID:         feedID,
		Status:         intel.RunStatusRunning,
		StartedAt:      time.Now().UTC(),
	}
	s.runs[run.ID] = run
	return copyRun(run), nil
}

func (s *MemoryStore) FinishFeedRun(ctx context.Context, runID string, summary intel.RunSummary) (*intel.ThreatFeedRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, intel.ErrRunNotFound
	}

	now := time.Now().UTC()
	run.FinishedAt = &now
	if len(summary.Errors) > 0 {
		run.Status = intel.RunStatusPartial
	} else {
		run.Status = intel.RunStatusSuccess
	}
	run.Fetched = summary.Fetched
	run.Created = summary.Created
	run.Updated = summary.Updated
	run.Skipped = summary.Skipped
	run.Errors = summary.Errors
	run.Checkpoint = summary.Checkpoint
	return copyRun(run), nil
}

func (s *MemoryStore) MarkStaleFeedRuns(ctx context.Context, orgID, feedID string, staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	now := time.Now().UTC()
	for _, run := range s.runs {
		if run.OrganizationID != orgID || run.FeedID != feedID {
			continue
		}
		if run.Status != intel.RunStatusRunning || !run.StartedAt.Before(staleBefore) {
			continue
		}
		run.Status = intel.RunStatusPartial
		run.FinishedAt = &now
		run.Errors = []string{"Run marked stale after exceeding execution window"}
		count++
	}
	return count, nil
}

func (s *MemoryStore) ListRecentFeedRuns(ctx context.Context, orgID string, limit int) ([]*intel.ThreatFeedRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}

	var runs []*intel.ThreatFeedRun
	for _, run := range s.runs {
		if run.OrganizationID == orgID {
			runs = append(runs, copyRun(run))
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// =============================================================================
// Indicators
// =============================================================================

func (s *MemoryStore) UpsertIndicator(ctx context.Context, orgID, feedID string, in intel.NormalizedIndicator) (intel.UpsertResult[*intel.ThreatIndicator], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, indicator := range s.indicators {
		if indicator.OrganizationID == orgID && indicator.FeedID == feedID &&
			indicator.Type == in.Type && indicator.NormalizedValue == in.NormalizedValue {
			indicator.Value = in.Value
			indicator.Confidence = in.Confidence
			indicator.Severity = in.Severity
			indicator.LastSeen = in.LastSeen
			indicator.ExpiresAt = in.ExpiresAt
			indicator.Description = in.Description
			indicator.Tags = in.Tags
			indicator.TacticID = in.TacticID
			indicator.TechniqueID = in.TechniqueID
			indicator.Metadata = in.Metadata
			return intel.UpsertResult[*intel.ThreatIndicator]{Row: copyIndicator(indicator)}, nil
		}
	}

	indicator := &intel.ThreatIndicator{
		ID:              uuid.NewString(),
		OrganizationID:  orgID,
		FeedID:          feedID,
		Type:            in.Type,
		Value:           in.Value,
		NormalizedValue: in.NormalizedValue,
		Confidence:      in.Confidence,
		Severity:        in.Severity,
		FirstSeen:       in.FirstSeen,
		LastSeen:        in.LastSeen,
		ExpiresAt:       in.ExpiresAt,
		Source:          in.Source,
		Description:     in.Description,
		Tags:            in.Tags,
		TacticID:        in.TacticID,
		TechniqueID:     in.TechniqueID,
		Metadata:        in.Metadata,
	}
	s.indicators[indicator.ID] = indicator
	return intel.UpsertResult[*intel.ThreatIndicator]{Row: copyIndicator(indicator), WasCreated: true}, nil
}

func (s *MemoryStore) ListIndicators(ctx context.Context, orgID string, filters intel.IndicatorFilters) ([]*intel.ThreatIndicator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var indicators []*intel.ThreatIndicator
	for _, indicator := range s.indicators {
		if indicator.OrganizationID != orgID {
			continue
		}
		if filters.Type != "" && indicator.Type != filters.Type {
			continue
		}
		if filters.Severity != "" && indicator.Severity != filters.Severity {
			continue
		}
		if !filters.IncludeExpired && indicator.Expired(now) {
			continue
		}
		if filters.Search != "" && !indicatorMatchesSearch(indicator, filters.Search) {
			continue
		}
		indicators = append(indicators, copyIndicator(indicator))
	}
	sort.Slice(indicators, func(i, j int) bool { return indicators[i].LastSeen.After(indicators[j].LastSeen) })
	return indicators, nil
}

func indicatorMatchesSearch(indicator *intel.ThreatIndicator, search string) bool {
	needle := strings.ToLower(search)
	return strings.Contains(strings.ToLower(indicator.Value), needle) ||
		strings.Contains(strings.ToLower(indicator.Description), needle) ||
		strings.Contains(strings.ToLower(indicator.Source), needle)
}

func (s *MemoryStore) GetIndicator(ctx context.Context, orgID, indicatorID string) (*intel.ThreatIndicator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	indicator, ok := s.indicators[indicatorID]
	if !ok || indicator.OrganizationID != orgID {
		return nil, intel.ErrIndicatorNotFound
	}
	return copyIndicator(indicator), nil
}

// =============================================================================
// Matches
// =============================================================================

func (s *MemoryStore) UpsertIndicatorMatch(ctx context.Context, input intel.MatchInput) (intel.UpsertResult[*intel.ThreatIndicatorMatch], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := input.Status
	if status == "" {
		status = intel.MatchStatusActive
	}

	for _, match := range s.matches {
		if match.IndicatorID == input.IndicatorID && match.AssetID == input.AssetID && match.MatchField == input.MatchField {
			match.MatchValue = input.MatchValue
			match.Confidence = input.Confidence
			match.Status = status
			match.Notes = input.Notes
			match.LastMatchedAt = time.Now().UTC()
			return intel.UpsertResult[*intel.ThreatIndicatorMatch]{Row: copyMatch(match)}, nil
		}
	}

	now := time.Now().UTC()
	match := &intel.ThreatIndicatorMatch{
		ID:             uuid.NewString(),
		IndicatorID:    input.IndicatorID,
		AssetID:        input.AssetID,
		OrganizationID: input.OrganizationID,
		MatchField:     input.MatchField,
		MatchValue:     input.MatchValue,
		Confidence:     input.Confidence,
		Status:         status,
		Notes:          input.Notes,
		FirstMatchedAt: now,
		LastMatchedAt:  now,
	}
	s.matches[match.ID] = match
	return intel.UpsertResult[*intel.ThreatIndicatorMatch]{Row: copyMatch(match), WasCreated: true}, nil
}

func (s *MemoryStore) ListIndicatorMatches(ctx context.Context, orgID string) ([]*intel.ThreatIndicatorMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []*intel.ThreatIndicatorMatch
	for _, match := range s.matches {
		if match.OrganizationID == orgID {
			matches = append(matches, copyMatch(match))
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].LastMatchedAt.After(matches[j].LastMatchedAt) })
	return matches, nil
}

func (s *MemoryStore) SetMatchStatus(ctx context.Context, orgID, matchID string, status intel.MatchStatus) (*intel.ThreatIndicatorMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	match, ok := s.matches[matchID]
	if !ok || match.OrganizationID != orgID {
		return nil, intel.ErrMatchNotFound
	}

	match.Status = status
	if status == intel.MatchStatusResolved {
		now := time.Now().UTC()
		match.ResolvedAt = &now
	} else {
		match.ResolvedAt = nil
	}
	return copyMatch(match), nil
}

// =============================================================================
// ATT&CK knowledge base
// =============================================================================

func (s *MemoryStore) UpsertAttackTactic(ctx context.Context, tactic intel.AttackTactic) (*intel.AttackTactic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.tactics[tactic.ExternalID]; ok {
		existing.Name = tactic.Name
		existing.ShortName = tactic.ShortName
		existing.Description = tactic.Description
		existing.Platforms = tactic.Platforms
		out := *existing
		return &out, nil
	}

	tactic.ID = uuid.NewString()
	stored := tactic
	s.tactics[tactic.ExternalID] = &stored
	out := stored
	return &out, nil
}

func (s *MemoryStore) UpsertAttackTechnique(ctx context.Context, technique intel.AttackTechnique) (*intel.AttackTechnique, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.techniques[technique.ExternalID]; ok {
		existing.Name = technique.Name
		existing.Description = technique.Description
		existing.IsSubTechnique = technique.IsSubTechnique
		existing.Revoked = technique.Revoked
		existing.Platforms = technique.Platforms
		out := *existing
		return &out, nil
	}

	technique.ID = uuid.NewString()
	stored := technique
	s.techniques[technique.ExternalID] = &stored
	out := stored
	return &out, nil
}

func (s *MemoryStore) LinkTechniqueTactic(ctx context.Context, techniqueID, tacticID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.techniqueTactics[[2]string{techniqueID, tacticID}] = struct{}{}
	return nil
}

func (s *MemoryStore) UpsertThreatActor(ctx context.Context, actor intel.ThreatActor) (*intel.ThreatActor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.actors {
		sameExternal := actor.ExternalID != "" && existing.ExternalID == actor.ExternalID
		sameName := actor.ExternalID == "" && existing.Name == actor.Name
		if sameExternal || sameName {
			existing.ExternalID = actor.ExternalID
			existing.Name = actor.Name
			existing.Description = actor.Description
			existing.Aliases = actor.Aliases
			out := *existing
			return &out, nil
		}
	}

	actor.ID = uuid.NewString()
	stored := actor
	s.actors[actor.ID] = &stored
	out := stored
	return &out, nil
}

func (s *MemoryStore) UpsertThreatCampaign(ctx context.Context, campaign intel.ThreatCampaign) (*intel.ThreatCampaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.campaigns {
		sameExternal := campaign.ExternalID != "" && existing.ExternalID == campaign.ExternalID
		sameName := campaign.ExternalID == "" && existing.Name == campaign.Name
		if sameExternal || sameName {
			existing.ExternalID = campaign.ExternalID
			existing.Name = campaign.Name
			existing.Description = campaign.Description
			existing.FirstSeen = campaign.FirstSeen
			existing.LastSeen = campaign.LastSeen
			out := *existing
			return &out, nil
		}
	}

	campaign.ID = uuid.NewString()
	stored := campaign
	s.campaigns[campaign.ID] = &stored
	out := stored
	return &out, nil
}

func (s *MemoryStore) LinkActorTechnique(ctx context.Context, actorID, techniqueID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actorTechniques[[2]string{actorID, techniqueID}] = struct{}{}
	return nil
}

func (s *MemoryStore) LinkCampaignTechnique(ctx context.Context, campaignID, techniqueID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaignTechs[[2]string{campaignID, techniqueID}] = struct{}{}
	return nil
}

// LinkCampaignActor records attribution by stamping the actor onto the
// campaign row.
func (s *MemoryStore) LinkCampaignActor(ctx context.Context, campaignID, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, campaign := range s.campaigns {
		if campaign.ID == campaignID {
			campaign.ActorID = actorID
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) FindTechniqueByExternalID(ctx context.Context, externalID string) (*intel.AttackTechnique, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	technique, ok := s.techniques[externalID]
	if !ok {
		return nil, intel.ErrTechniqueNotFound
	}
	out := *technique
	return &out, nil
}

func (s *MemoryStore) ListActorsUsingTechnique(ctx context.Context, techniqueExternalID string) ([]*intel.ThreatActor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	technique, ok := s.techniques[techniqueExternalID]
	if !ok {
		return nil, nil
	}

	var actors []*intel.ThreatActor
	for key := range s.actorTechniques {
		if key[1] != technique.ID {
			continue
		}
		if actor, ok := s.actors[key[0]]; ok {
			out := *actor
			actors = append(actors, &out)
		}
	}
	sort.Slice(actors, func(i, j int) bool { return actors[i].Name < actors[j].Name })
	return actors, nil
}

// =============================================================================
// Vulnerability links
// =============================================================================

func (s *MemoryStore) UpsertVulnerabilityTechnique(ctx context.Context, mapping intel.TechniqueMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Unknown techniques are silently skipped: CWE mapping tables can
	// reference techniques the last ATT&CK sync has not imported yet.
	if _, ok := s.techniques[mapping.TechniqueExternalID]; !ok {
		return nil
	}

	key := [3]string{mapping.VulnerabilityID, mapping.TechniqueExternalID, string(mapping.Source)}
	stored := mapping
	s.vulnTechniques[key] = &stored
	return nil
}

func (s *MemoryStore) UpsertVulnerabilityActor(ctx context.Context, link intel.ActorLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := [3]string{link.VulnerabilityID, link.ActorID, string(link.Source)}
	stored := link
	s.vulnActors[key] = &stored
	return nil
}

// VulnerabilityTechniqueCount reports how many technique mappings exist.
func (s *MemoryStore) VulnerabilityTechniqueCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.vulnTechniques)
}

// =============================================================================
// External collaborators and alerting
// =============================================================================

func (s *MemoryStore) ListOrgAssets(ctx context.Context, orgID string) ([]*intel.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	assets := make([]*intel.Asset, 0, len(s.assets[orgID]))
	for _, asset := range s.assets[orgID] {
		out := *asset
		assets = append(assets, &out)
	}
	return assets, nil
}

func (s *MemoryStore) ListOrgVulnerabilities(ctx context.Context, orgID string) ([]*intel.Vulnerability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vulns := make([]*intel.Vulnerability, 0, len(s.vulnerabilities[orgID]))
	for _, vuln := range s.vulnerabilities[orgID] {
		out := *vuln
		vulns = append(vulns, &out)
	}
	return vulns, nil
}

func (s *MemoryStore) ListAlertRecipients(ctx context.Context, orgID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recipients []string
	for _, user := range s.users[orgID] {
		for _, role := range AlertRoles {
			if user.Role == role {
				recipients = append(recipients, user.ID)
				break
			}
		}
	}
	return recipients, nil
}

func (s *MemoryStore) CreateNotifications(ctx context.Context, orgID string, notifications []intel.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[orgID] = append(s.notifications[orgID], notifications...)
	return nil
}

// =============================================================================
// Copy helpers
// =============================================================================

func copyFeed(feed *intel.ThreatFeed) *intel.ThreatFeed {
	out := *feed
	if feed.LastSync != nil {
		lastSync := *feed.LastSync
		out.LastSync = &lastSync
	}
	return &out
}

func copyRun(run *intel.ThreatFeedRun) *intel.ThreatFeedRun {
	out := *run
	if run.FinishedAt != nil {
		finished := *run.FinishedAt
		out.FinishedAt = &finished
	}
	out.Errors = append([]string(nil), run.Errors...)
	return &out
}

func copyIndicator(indicator *intel.ThreatIndicator) *intel.ThreatIndicator {
	out := *indicator
	if indicator.Confidence != nil {
		confidence := *indicator.Confidence
		out.Confidence = &confidence
	}
	if indicator.ExpiresAt != nil {
		expires := *indicator.ExpiresAt
		out.ExpiresAt = &expires
	}
	out.Tags = append([]string(nil), indicator.Tags...)
	return &out
}

func copyMatch(match *intel.ThreatIndicatorMatch) *intel.ThreatIndicatorMatch {
	out := *match
	if match.Confidence != nil {
		confidence := *match.Confidence
		out.Confidence = &confidence
	}
	if match.ResolvedAt != nil {
		resolved := *match.ResolvedAt
		out.ResolvedAt = &resolved
	}
	return &out
}
