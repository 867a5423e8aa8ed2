package mitre

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vantran-sec/threatsync/internal/config"
	"github.com/vantran-sec/threatsync/internal/intel"
)

// SyncSummary reports everything one knowledge-base sync touched.
type SyncSummary struct {
	Tactics                     int
	Techniques                  int
	Actors                      int
	Campaigns                   int
	TacticTechniqueLinks        int
	ActorTechniqueLinks         int
	CampaignTechniqueLinks      int
	CampaignActorLinks          int
	VulnerabilityTechniqueLinks int
	VulnerabilityActorLinks     int
	Errors                      []string
	Checkpoint                  string
}

// Service drives the ATT&CK knowledge-base sync: fetch the collection,
// parse it, upsert entities in dependency order, then rebuild the
// vulnerability mappings. Individual upsert failures accumulate as run
// errors; only a failed fetch aborts the sync.
type Service struct {
	cfg    *config.Config
	taxii  *TAXIIClient
	repo   intel.Repository
	mapper *VulnerabilityMapper
	logger *zap.Logger
}

// NewService builds the ATT&CK sync service.
func NewService(cfg *config.Config, taxii *TAXIIClient, repo intel.Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:    cfg,
		taxii:  taxii,
		repo:   repo,
		mapper: NewVulnerabilityMapper(repo),
		logger: logger,
	}
}

// Sync pulls the enterprise collection since checkpoint and persists it.
func (s *Service) Sync(ctx context.Context, orgID, checkpoint string) (*SyncSummary, error) {
	objects, err := s.taxii.FetchCollectionObjects(ctx, s.cfg.MITRE.EnterpriseCollectionID, checkpoint, 500)
	if err != nil {
		return nil, fmt.Errorf("fetching ATT&CK collection: %w", err)
	}

	parsed := ParseAttackObjects(objects)
	s.logger.Info("parsed ATT&CK collection",
		zap.Int("objects", len(objects)),
		zap.Int("tactics", len(parsed.Tactics)),
		zap.Int("techniques", len(parsed.Techniques)),
		zap.Int("actors", len(parsed.Actors)),
		zap.Int("campaigns", len(parsed.Campaigns)))

	summary := &SyncSummary{
		Tactics:    len(parsed.Tactics),
		Techniques: len(parsed.Techniques),
		Actors:     len(parsed.Actors),
		Campaigns:  len(parsed.Campaigns),
	}

	tacticIDByExternalID := make(map[string]string)
	techniqueIDByExternalID := make(map[string]string)
	actorIDByStixID := make(map[string]string)
	campaignIDByStixID := make(map[string]string)

	for _, tactic := range parsed.Tactics {
		saved, err := s.repo.UpsertAttackTactic(ctx, intel.AttackTactic{
			ExternalID:  tactic.ExternalID,
			Name:        tactic.Name,
			ShortName:   tactic.ShortName,
			Description: tactic.Description,
			Platforms:   tactic.Platforms,
		})
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Failed to upsert tactic %s: %v", tactic.ExternalID, err))
			continue
		}
		tacticIDByExternalID[saved.ExternalID] = saved.ID
	}

	for _, technique := range parsed.Techniques {
		saved, err := s.repo.UpsertAttackTechnique(ctx, intel.AttackTechnique{
			ExternalID:     technique.ExternalID,
			Name:           technique.Name,
			Description:    technique.Description,
			IsSubTechnique: technique.IsSubTechnique,
			Revoked:        technique.Revoked,
			Platforms:      technique.Platforms,
		})
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Failed to upsert technique %s: %v", technique.ExternalID, err))
			continue
		}
		techniqueIDByExternalID[saved.ExternalID] = saved.ID
	}

	for _, link := range parsed.TacticTechniqueLinks {
		tacticID, okTactic := tacticIDByExternalID[link.TacticExternalID]
		techniqueID, okTechnique := techniqueIDByExternalID[link.TechniqueExternalID]
		if !okTactic || !okTechnique {
			continue
		}
		if err := s.repo.LinkTechniqueTactic(ctx, techniqueID, tacticID); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Failed to link tactic %s -> %s: %v", link.TacticExternalID, link.TechniqueExternalID, err))
			continue
		}
		summary.TacticTechniqueLinks++
	}

	for _, actor := range parsed.Actors {
		saved, err := s.repo.UpsertThreatActor(ctx, intel.ThreatActor{
			ExternalID:  actor.ExternalID,
			Name:        actor.Name,
			Description: actor.Description,
			Aliases:     actor.Aliases,
		})
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Failed to upsert actor %s: %v", actor.Name, err))
			continue
		}
		actorIDByStixID[actor.StixID] = saved.ID
	}

	for _, campaign := range parsed.Campaigns {
		saved, err := s.repo.UpsertThreatCampaign(ctx, intel.ThreatCampaign{
			ExternalID:  campaign.ExternalID,
			Name:        campaign.Name,
			Description: campaign.Description,
			FirstSeen:   campaign.FirstSeen,
			LastSeen:    campaign.LastSeen,
		})
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Failed to upsert campaign %s: %v", campaign.Name, err))
			continue
		}
		campaignIDByStixID[campaign.StixID] = saved.ID
	}

	for _, link := range parsed.ActorTechniqueLinks {
		actorID := actorIDByStixID[link.SourceStixID]
		techniqueID := techniqueIDByExternalID[parsed.TechniqueExternalID(link.TargetStixID)]
		if actorID == "" || techniqueID == "" {
			continue
		}
		if err := s.repo.LinkActorTechnique(ctx, actorID, techniqueID); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Failed to link actor technique %s:%s - %v", link.SourceStixID, link.TargetStixID, err))
			continue
		}
		summary.ActorTechniqueLinks++
	}

	for _, link := range parsed.CampaignTechniqueLinks {
		campaignID := campaignIDByStixID[link.SourceStixID]
		techniqueID := techniqueIDByExternalID[parsed.TechniqueExternalID(link.TargetStixID)]
		if campaignID == "" || techniqueID == "" {
			continue
		}
		if err := s.repo.LinkCampaignTechnique(ctx, campaignID, techniqueID); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Failed to link campaign technique %s:%s - %v", link.SourceStixID, link.TargetStixID, err))
			continue
		}
		summary.CampaignTechniqueLinks++
	}

	for _, link := range parsed.CampaignActorLinks {
		campaignID := campaignIDByStixID[link.SourceStixID]
		actorID := actorIDByStixID[link.TargetStixID]
		if campaignID == "" || actorID == "" {
			continue
		}
		if err := s.repo.LinkCampaignActor(ctx, campaignID, actorID); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Failed to link campaign actor %s:%s - %v", link.SourceStixID, link.TargetStixID, err))
			continue
		}
		summary.CampaignActorLinks++
	}

	if techniqueStats, err := s.mapper.MapOrganizationVulnerabilities(ctx, orgID); err != nil {
		summary.Errors = append(summary.Errors, err.Error())
	} else {
		summary.VulnerabilityTechniqueLinks = techniqueStats.Direct + techniqueStats.CWE
		summary.Errors = append(summary.Errors, techniqueStats.Errors...)
	}

	if actorStats, err := s.mapper.LinkVulnerabilitiesToActors(ctx, orgID); err != nil {
		summary.Errors = append(summary.Errors, err.Error())
	} else {
		summary.VulnerabilityActorLinks = actorStats.Linked
		summary.Errors = append(summary.Errors, actorStats.Errors...)
	}

	summary.Checkpoint = time.Now().UTC().Format(time.RFC3339)
	return summary, nil
}
