package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vantran-sec/threatsync/internal/intel"
)

const redisKeyPrefix = "threatsync"

// RedisStore persists the repository as JSON values in Redis. Rows live
// under per-entity keys, natural keys resolve through small pointer keys,
// and per-organization sets act as indexes.
//
// The store mirrors MemoryStore behavior exactly; the memory tests are the
// contract both implementations answer to.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an already-connected client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func key(parts ...string) string {
	return redisKeyPrefix + ":" + strings.Join(parts, ":")
}

func (s *RedisStore) getJSON(ctx context.Context, k string, out any) (bool, error) {
	raw, err := s.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", k, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decoding %s: %w", k, err)
	}
	return true, nil
}

func (s *RedisStore) setJSON(ctx context.Context, k string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", k, err)
	}
	if err := s.rdb.Set(ctx, k, raw, 0).Err(); err != nil {
		return fmt.Errorf("writing %s: %w", k, err)
	}
	return nil
}

// =============================================================================
// Feed lifecycle
// =============================================================================

func (s *RedisStore) UpsertFeed(ctx context.Context, orgID string, input intel.FeedUpsert) (*intel.ThreatFeed, error) {
	syncInterval := input.SyncInterval
	if syncInterval == 0 {
		syncInterval = 3600
	}

	nameKey := key("feedname", orgID, input.Name)
	if feedID, err := s.rdb.Get(ctx, nameKey).Result(); err == nil {
		var feed intel.ThreatFeed
		ok, err := s.getJSON(ctx, key("feed", feedID), &feed)
		if err != nil {
			return nil, err
		}
		if ok {
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
			if err := s.setJSON(ctx, key("feed", feed.ID), &feed); err != nil {
				return nil, err
			}
			return &feed, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("resolving feed name: %w", err)
	}

	feed := intel.ThreatFeed{
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
	if err := s.setJSON(ctx, key("feed", feed.ID), &feed); err != nil {
		return nil, err
	}
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, nameKey, feed.ID, 0)
	pipe.SAdd(ctx, key("feeds", orgID), feed.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("indexing feed: %w", err)
	}
	return &feed, nil
}

func (s *RedisStore) ListFeeds(ctx context.Context, orgID string) ([]*intel.ThreatFeed, error) {
	ids, err := s.rdb.SMembers(ctx, key("feeds", orgID)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}

	feeds := make([]*intel.ThreatFeed, 0, len(ids))
	for _, id := range ids {
		var feed intel.ThreatFeed
		ok, err := s.getJSON(ctx, key("feed", id), &feed)
		if err != nil {
			return nil, err
		}
		if ok {
			feeds = append(feeds, &feed)
		}
	}
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].Name < feeds[j].Name })
	return feeds, nil
}

func (s *RedisStore) UpdateFeed(ctx context.Context, orgID, feedID string, update intel.FeedUpdate) (*intel.ThreatFeed, error) {
	var feed intel.ThreatFeed
	ok, err := s.getJSON(ctx, key("feed", feedID), &feed)
	if err != nil {
		return nil, err
	}
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
	if err := s.setJSON(ctx, key("feed", feed.ID), &feed); err != nil {
		return nil, err
	}
	return &feed, nil
}

func (s *RedisStore) SeedDefaultFeeds(ctx context.Context, orgID string) error {
	return seedDefaults(ctx, orgID, s.UpsertFeed)
}

// seedDefaults is shared with MemoryStore so the two stores cannot drift on
// the built-in feed catalog.
func seedDefaults(ctx context.Context, orgID string, upsert func(context.Context, string, intel.FeedUpsert) (*intel.ThreatFeed, error)) error {
	defaults := []intel.FeedUpsert{
		{Name: "AlienVault OTX", Source: "ALIENVAULT_OTX", Type: intel.FeedTypeIOC, Format: intel.FormatJSON,
			URL: "https://otx.alienvault.com/api/v1/pulses/subscribed"},
		{Name: "CIRCL Vulnerability Feed", Source: "CIRCL", Type: intel.FeedTypeCVE, Format: intel.FormatJSON,
			URL: "https://vulnerability.circl.lu/api/last"},
		{Name: "URLhaus Recent URLs", Source: "URLHAUS", Type: intel.FeedTypeIOC, Format: intel.FormatJSON,
			URL: "https://urlhaus-api.abuse.ch/v1/urls/recent/"},
		{Name: "MalwareBazaar Recent", Source: "MALWAREBAZAAR", Type: intel.FeedTypeMalware, Format: intel.FormatJSON,
			URL: "https://mb-api.abuse.ch/api/v1/"},
		{Name: "MITRE ATT&CK TAXII", Source: "MITRE_ATTACK", Type: intel.FeedTypeThreatActor, Format: intel.FormatTAXII,
			URL: "https://attack-taxii.mitre.org/taxii2/", SyncInterval: 86400},
	}
	for _, feed := range defaults {
		if _, err := upsert(ctx, orgID, feed); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Run lifecycle
// =============================================================================

func (s *RedisStore) CreateFeedRun(ctx context.Context, orgID, feedID string) (*intel.ThreatFeedRun, error) {
	run := intel.ThreatFeedRun{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		FeedID:         feedID,
		Status:         intel.RunStatusRunning,
		StartedAt:      time.Now().UTC(),
	}
	if err := s.setJSON(ctx, key("run", run.ID), &run); err != nil {
		return nil, err
	}
	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, key("runs", orgID), redis.Z{Score: float64(run.StartedAt.UnixNano()), Member: run.ID})
	pipe.SAdd(ctx, key("runs", orgID, "feed", feedID), run.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("indexing run: %w", err)
	}
	return &run, nil
}

func (s *RedisStore) FinishFeedRun(ctx context.Context, runID string, summary intel.RunSummary) (*intel.ThreatFeedRun, error) {
	var run intel.ThreatFeedRun
	ok, err := s.getJSON(ctx, key("run", runID), &run)
	if err != nil {
		return nil, err
	}
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
	if err := s.setJSON(ctx, key("run", run.ID), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *RedisStore) MarkStaleFeedRuns(ctx context.Context, orgID, feedID string, staleBefore time.Time) (int, error) {
	ids, err := s.rdb.SMembers(ctx, key("runs", orgID, "feed", feedID)).Result()
	if err != nil {
		return 0, fmt.Errorf("listing feed runs: %w", err)
	}

	count := 0
	now := time.Now().UTC()
	for _, id := range ids {
		var run intel.ThreatFeedRun
		ok, err := s.getJSON(ctx, key("run", id), &run)
		if err != nil {
			return count, err
		}
		if !ok || run.Status != intel.RunStatusRunning || !run.StartedAt.Before(staleBefore) {
			continue
		}
		run.Status = intel.RunStatusPartial
		run.FinishedAt = &now
		run.Errors = []string{"Run marked stale after exceeding execution window"}
		if err := s.setJSON(ctx, key("run", run.ID), &run); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (s *RedisStore) ListRecentFeedRuns(ctx context.Context, orgID string, limit int) ([]*intel.ThreatFeedRun, error) {
	if limit <= 0 {
		limit = 20
	}
	ids, err := s.rdb.ZRevRange(ctx, key("runs", orgID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	runs := make([]*intel.ThreatFeedRun, 0, len(ids))
	for _, id := range ids {
		var run intel.ThreatFeedRun
		ok, err := s.getJSON(ctx, key("run", id), &run)
		if err != nil {
			return nil, err
		}
		if ok {
			runs = append(runs, &run)
		}
	}
	return runs, nil
}

// =============================================================================
// Indicators
// =============================================================================

func indicatorNaturalKey(orgID, feedID string, typ intel.IndicatorType, normalized string) string {
	return key("indkey", orgID, feedID, string(typ), normalized)
}

func (s *RedisStore) UpsertIndicator(ctx context.Context, orgID, feedID string, in intel.NormalizedIndicator) (intel.UpsertResult[*intel.ThreatIndicator], error) {
	var zero intel.UpsertResult[*intel.ThreatIndicator]

	natKey := indicatorNaturalKey(orgID, feedID, in.Type, in.NormalizedValue)
	if existingID, err := s.rdb.Get(ctx, natKey).Result(); err == nil {
		var indicator intel.ThreatIndicator
		ok, err := s.getJSON(ctx, key("indicator", existingID), &indicator)
		if err != nil {
			return zero, err
		}
		if ok {
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
			if err := s.setJSON(ctx, key("indicator", indicator.ID), &indicator); err != nil {
				return zero, err
			}
			return intel.UpsertResult[*intel.ThreatIndicator]{Row: &indicator}, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return zero, fmt.Errorf("resolving indicator key: %w", err)
	}

	indicator := intel.ThreatIndicator{
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
	if err := s.setJSON(ctx, key("indicator", indicator.ID), &indicator); err != nil {
		return zero, err
	}
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, natKey, indicator.ID, 0)
	pipe.SAdd(ctx, key("indicators", orgID), indicator.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return zero, fmt.Errorf("indexing indicator: %w", err)
	}
	return intel.UpsertResult[*intel.ThreatIndicator]{Row: &indicator, WasCreated: true}, nil
}

func (s *RedisStore) ListIndicators(ctx context.Context, orgID string, filters intel.IndicatorFilters) ([]*intel.ThreatIndicator, error) {
	ids, err := s.rdb.SMembers(ctx, key("indicators", orgID)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing indicators: %w", err)
	}

	now := time.Now().UTC()
	var indicators []*intel.ThreatIndicator
	for _, id := range ids {
		var indicator intel.ThreatIndicator
		ok, err := s.getJSON(ctx, key("indicator", id), &indicator)
		if err != nil {
			return nil, err
		}
		if !ok {
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
		if filters.Search != "" && !indicatorMatchesSearch(&indicator, filters.Search) {
			continue
		}
		indicators = append(indicators, &indicator)
	}
	sort.Slice(indicators, func(i, j int) bool { return indicators[i].LastSeen.After(indicators[j].LastSeen) })
	return indicators, nil
}

func (s *RedisStore) GetIndicator(ctx context.Context, orgID, indicatorID string) (*intel.ThreatIndicator, error) {
	var indicator intel.ThreatIndicator
	ok, err := s.getJSON(ctx, key("indicator", indicatorID), &indicator)
	if err != nil {
		return nil, err
	}
	if !ok || indicator.OrganizationID != orgID {
		return nil, intel.ErrIndicatorNotFound
	}
	return &indicator, nil
}

// =============================================================================
// Matches
// =============================================================================

func (s *RedisStore) UpsertIndicatorMatch(ctx context.Context, input intel.MatchInput) (intel.UpsertResult[*intel.ThreatIndicatorMatch], error) {
	var zero intel.UpsertResult[*intel.ThreatIndicatorMatch]

	status := input.Status
	if status == "" {
		status = intel.MatchStatusActive
	}

	natKey := key("matchkey", input.IndicatorID, input.AssetID, input.MatchField)
	if existingID, err := s.rdb.Get(ctx, natKey).Result(); err == nil {
		var match intel.ThreatIndicatorMatch
		ok, err := s.getJSON(ctx, key("match", existingID), &match)
		if err != nil {
			return zero, err
		}
		if ok {
			match.MatchValue = input.MatchValue
			match.Confidence = input.Confidence
			match.Status = status
			match.Notes = input.Notes
			match.LastMatchedAt = time.Now().UTC()
			if err := s.setJSON(ctx, key("match", match.ID), &match); err != nil {
				return zero, err
			}
			return intel.UpsertResult[*intel.ThreatIndicatorMatch]{Row: &match}, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return zero, fmt.Errorf("resolving match key: %w", err)
	}

	now := time.Now().UTC()
	match := intel.ThreatIndicatorMatch{
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
	if err := s.setJSON(ctx, key("match", match.ID), &match); err != nil {
		return zero, err
	}
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, natKey, match.ID, 0)
	pipe.SAdd(ctx, key("matches", input.OrganizationID), match.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return zero, fmt.Errorf("indexing match: %w", err)
	}
	return intel.UpsertResult[*intel.ThreatIndicatorMatch]{Row: &match, WasCreated: true}, nil
}

func (s *RedisStore) ListIndicatorMatches(ctx context.Context, orgID string) ([]*intel.ThreatIndicatorMatch, error) {
	ids, err := s.rdb.SMembers(ctx, key("matches", orgID)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}

	matches := make([]*intel.ThreatIndicatorMatch, 0, len(ids))
	for _, id := range ids {
		var match intel.ThreatIndicatorMatch
		ok, err := s.getJSON(ctx, key("match", id), &match)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, &match)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].LastMatchedAt.After(matches[j].LastMatchedAt) })
	return matches, nil
}

func (s *RedisStore) SetMatchStatus(ctx context.Context, orgID, matchID string, status intel.MatchStatus) (*intel.ThreatIndicatorMatch, error) {
	var match intel.ThreatIndicatorMatch
	ok, err := s.getJSON(ctx, key("match", matchID), &match)
	if err != nil {
		return nil, err
	}
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
	if err := s.setJSON(ctx, key("match", match.ID), &match); err != nil {
		return nil, err
	}
	return &match, nil
}

// =============================================================================
// ATT&CK knowledge base
// =============================================================================

func (s *RedisStore) UpsertAttackTactic(ctx context.Context, tactic intel.AttackTactic) (*intel.AttackTactic, error) {
	hashKey := key("attack", "tactics")
	var existing intel.AttackTactic
	raw, err := s.rdb.HGet(ctx, hashKey, tactic.ExternalID).Bytes()
	if err == nil && json.Unmarshal(raw, &existing) == nil {
		tactic.ID = existing.ID
	} else if !errors.Is(err, redis.Nil) && err != nil {
		return nil, fmt.Errorf("reading tactic: %w", err)
	} else {
		tactic.ID = uuid.NewString()
	}

	encoded, err := json.Marshal(&tactic)
	if err != nil {
		return nil, fmt.Errorf("encoding tactic: %w", err)
	}
	if err := s.rdb.HSet(ctx, hashKey, tactic.ExternalID, encoded).Err(); err != nil {
		return nil, fmt.Errorf("writing tactic: %w", err)
	}
	return &tactic, nil
}

func (s *RedisStore) UpsertAttackTechnique(ctx context.Context, technique intel.AttackTechnique) (*intel.AttackTechnique, error) {
	hashKey := key("attack", "techniques")
	var existing intel.AttackTechnique
	raw, err := s.rdb.HGet(ctx, hashKey, technique.ExternalID).Bytes()
	if err == nil && json.Unmarshal(raw, &existing) == nil {
		technique.ID = existing.ID
	} else if !errors.Is(err, redis.Nil) && err != nil {
		return nil, fmt.Errorf("reading technique: %w", err)
	} else {
		technique.ID = uuid.NewString()
	}

	encoded, err := json.Marshal(&technique)
	if err != nil {
		return nil, fmt.Errorf("encoding technique: %w", err)
	}
	if err := s.rdb.HSet(ctx, hashKey, technique.ExternalID, encoded).Err(); err != nil {
		return nil, fmt.Errorf("writing technique: %w", err)
	}
	return &technique, nil
}

func (s *RedisStore) LinkTechniqueTactic(ctx context.Context, techniqueID, tacticID string) error {
	return s.rdb.SAdd(ctx, key("attack", "technique-tactics"), techniqueID+"|"+tacticID).Err()
}

func (s *RedisStore) upsertNamedEntity(ctx context.Context, kind, externalID, name string, encode func(id string) ([]byte, error)) (string, error) {
	hashKey := key("attack", kind)
	field := externalID
	if field == "" {
		field = "name|" + name
	}

	id := ""
	if raw, err := s.rdb.HGet(ctx, hashKey, field).Result(); err == nil {
		var probe struct {
			ID string `json:"id"`
		}
		if json.Unmarshal([]byte(raw), &probe) == nil {
			id = probe.ID
		}
	} else if !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("reading %s: %w", kind, err)
	}
	if id == "" {
		id = uuid.NewString()
	}

	encoded, err := encode(id)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", kind, err)
	}
	if err := s.rdb.HSet(ctx, hashKey, field, encoded).Err(); err != nil {
		return "", fmt.Errorf("writing %s: %w", kind, err)
	}
	return id, nil
}

func (s *RedisStore) UpsertThreatActor(ctx context.Context, actor intel.ThreatActor) (*intel.ThreatActor, error) {
	id, err := s.upsertNamedEntity(ctx, "actors", actor.ExternalID, actor.Name, func(id string) ([]byte, error) {
		actor.ID = id
		return json.Marshal(&actor)
	})
	if err != nil {
		return nil, err
	}
	actor.ID = id
	return &actor, nil
}

func (s *RedisStore) UpsertThreatCampaign(ctx context.Context, campaign intel.ThreatCampaign) (*intel.ThreatCampaign, error) {
	// Preserve any attribution recorded by a prior LinkCampaignActor.
	hashKey := key("attack", "campaigns")
	field := campaign.ExternalID
	if field == "" {
		field = "name|" + campaign.Name
	}
	if raw, err := s.rdb.HGet(ctx, hashKey, field).Result(); err == nil {
		var existing intel.ThreatCampaign
		if json.Unmarshal([]byte(raw), &existing) == nil {
			campaign.ActorID = existing.ActorID
		}
	}

	id, err := s.upsertNamedEntity(ctx, "campaigns", campaign.ExternalID, campaign.Name, func(id string) ([]byte, error) {
		campaign.ID = id
		return json.Marshal(&campaign)
	})
	if err != nil {
		return nil, err
	}
	campaign.ID = id
	return &campaign, nil
}

func (s *RedisStore) LinkActorTechnique(ctx context.Context, actorID, techniqueID string) error {
	return s.rdb.SAdd(ctx, key("attack", "actor-techniques"), actorID+"|"+techniqueID).Err()
}

func (s *RedisStore) LinkCampaignTechnique(ctx context.Context, campaignID, techniqueID string) error {
	return s.rdb.SAdd(ctx, key("attack", "campaign-techniques"), campaignID+"|"+techniqueID).Err()
}

func (s *RedisStore) LinkCampaignActor(ctx context.Context, campaignID, actorID string) error {
	hashKey := key("attack", "campaigns")
	fields, err := s.rdb.HGetAll(ctx, hashKey).Result()
	if err != nil {
		return fmt.Errorf("listing campaigns: %w", err)
	}
	for field, raw := range fields {
		var campaign intel.ThreatCampaign
		if json.Unmarshal([]byte(raw), &campaign) != nil || campaign.ID != campaignID {
			continue
		}
		campaign.ActorID = actorID
		encoded, err := json.Marshal(&campaign)
		if err != nil {
			return fmt.Errorf("encoding campaign: %w", err)
		}
		return s.rdb.HSet(ctx, hashKey, field, encoded).Err()
	}
	return nil
}

func (s *RedisStore) FindTechniqueByExternalID(ctx context.Context, externalID string) (*intel.AttackTechnique, error) {
	raw, err := s.rdb.HGet(ctx, key("attack", "techniques"), externalID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, intel.ErrTechniqueNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading technique: %w", err)
	}
	var technique intel.AttackTechnique
	if err := json.Unmarshal(raw, &technique); err != nil {
		return nil, fmt.Errorf("decoding technique: %w", err)
	}
	return &technique, nil
}

func (s *RedisStore) ListActorsUsingTechnique(ctx context.Context, techniqueExternalID string) ([]*intel.ThreatActor, error) {
	technique, err := s.FindTechniqueByExternalID(ctx, techniqueExternalID)
	if errors.Is(err, intel.ErrTechniqueNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	links, err := s.rdb.SMembers(ctx, key("attack", "actor-techniques")).Result()
	if err != nil {
		return nil, fmt.Errorf("listing actor links: %w", err)
	}
	actorIDs := make(map[string]struct{})
	for _, link := range links {
		actorID, techniqueID, ok := strings.Cut(link, "|")
		if ok && techniqueID == technique.ID {
			actorIDs[actorID] = struct{}{}
		}
	}
	if len(actorIDs) == 0 {
		return nil, nil
	}

	fields, err := s.rdb.HGetAll(ctx, key("attack", "actors")).Result()
	if err != nil {
		return nil, fmt.Errorf("listing actors: %w", err)
	}
	var actors []*intel.ThreatActor
	for _, raw := range fields {
		var actor intel.ThreatActor
		if json.Unmarshal([]byte(raw), &actor) != nil {
			continue
		}
		if _, ok := actorIDs[actor.ID]; ok {
			out := actor
			actors = append(actors, &out)
		}
	}
	sort.Slice(actors, func(i, j int) bool { return actors[i].Name < actors[j].Name })
	return actors, nil
}

// =============================================================================
// Vulnerability links
// =============================================================================

func (s *RedisStore) UpsertVulnerabilityTechnique(ctx context.Context, mapping intel.TechniqueMapping) error {
	if _, err := s.FindTechniqueByExternalID(ctx, mapping.TechniqueExternalID); err != nil {
		if errors.Is(err, intel.ErrTechniqueNotFound) {
			return nil
		}
		return err
	}
	encoded, err := json.Marshal(&mapping)
	if err != nil {
		return fmt.Errorf("encoding technique mapping: %w", err)
	}
	field := mapping.VulnerabilityID + "|" + mapping.TechniqueExternalID + "|" + string(mapping.Source)
	return s.rdb.HSet(ctx, key("vuln-techniques"), field, encoded).Err()
}

func (s *RedisStore) UpsertVulnerabilityActor(ctx context.Context, link intel.ActorLink) error {
	encoded, err := json.Marshal(&link)
	if err != nil {
		return fmt.Errorf("encoding actor link: %w", err)
	}
	field := link.VulnerabilityID + "|" + link.ActorID + "|" + string(link.Source)
	return s.rdb.HSet(ctx, key("vuln-actors"), field, encoded).Err()
}

// =============================================================================
// External collaborators and alerting
// =============================================================================

func (s *RedisStore) ListOrgAssets(ctx context.Context, orgID string) ([]*intel.Asset, error) {
	var assets []*intel.Asset
	if _, err := s.getJSON(ctx, key("org", orgID, "assets"), &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

func (s *RedisStore) ListOrgVulnerabilities(ctx context.Context, orgID string) ([]*intel.Vulnerability, error) {
	var vulns []*intel.Vulnerability
	if _, err := s.getJSON(ctx, key("org", orgID, "vulnerabilities"), &vulns); err != nil {
		return nil, err
	}
	return vulns, nil
}

func (s *RedisStore) ListAlertRecipients(ctx context.Context, orgID string) ([]string, error) {
	var users []memoryUserRecord
	if _, err := s.getJSON(ctx, key("org", orgID, "users"), &users); err != nil {
		return nil, err
	}

	var recipients []string
	for _, user := range users {
		for _, role := range AlertRoles {
			if user.Role == role {
				recipients = append(recipients, user.ID)
				break
			}
		}
	}
	return recipients, nil
}

type memoryUserRecord struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

func (s *RedisStore) CreateNotifications(ctx context.Context, orgID string, notifications []intel.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	listKey := key("org", orgID, "notifications")
	pipe := s.rdb.Pipeline()
	for _, notification := range notifications {
		encoded, err := json.Marshal(&notification)
		if err != nil {
			return fmt.Errorf("encoding notification: %w", err)
		}
		pipe.RPush(ctx, listKey, encoded)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queueing notifications: %w", err)
	}
	return nil
}
