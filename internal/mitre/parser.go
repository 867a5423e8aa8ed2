package mitre

import (
	"encoding/json"
	"strings"
	"time"
)

// stixObject is the superset of fields the parser reads off any STIX 2.1
// object in the ATT&CK collection.
type stixObject struct {
	ID                 string              `json:"id"`
	Type               string              `json:"type"`
	Name               string              `json:"name"`
	Description        string              `json:"description"`
	Revoked            bool                `json:"revoked"`
	ExternalReferences []externalReference `json:"external_references"`
	MitrePlatforms     []string            `json:"x_mitre_platforms"`
	MitreShortname     string              `json:"x_mitre_shortname"`
	IsSubTechnique     bool                `json:"x_mitre_is_subtechnique"`
	Aliases            []string            `json:"aliases"`
	FirstSeen          string              `json:"first_seen"`
	LastSeen           string              `json:"last_seen"`
	SourceRef          string              `json:"source_ref"`
	TargetRef          string              `json:"target_ref"`
	RelationshipType   string              `json:"relationship_type"`
	KillChainPhases    []killChainPhase    `json:"kill_chain_phases"`
}

type externalReference struct {
	SourceName string `json:"source_name"`
	ExternalID string `json:"external_id"`
}

type killChainPhase struct {
	KillChainName string `json:"kill_chain_name"`
	PhaseName     string `json:"phase_name"`
}

// ParsedTactic is one ATT&CK tactic (TA-prefixed external ID).
type ParsedTactic struct {
	ExternalID  string
	Name        string
	ShortName   string
	Description string
	Platforms   []string
}

// ParsedTechnique is one attack-pattern with its tactic placement.
type ParsedTechnique struct {
	ExternalID       string
	StixID           string
	Name             string
	Description      string
	IsSubTechnique   bool
	Revoked          bool
	Platforms        []string
	TacticShortNames []string
}

// ParsedActor is one intrusion-set. ExternalID may be empty; the STIX ID is
// the stable handle within a parse.
type ParsedActor struct {
	ExternalID  string
	StixID      string
	Name        string
	Description string
	Aliases     []string
}

// ParsedCampaign is one campaign object.
type ParsedCampaign struct {
	ExternalID  string
	StixID      string
	Name        string
	Description string
	FirstSeen   *time.Time
	LastSeen    *time.Time
}

// TacticTechniqueLink places a technique under a tactic by external IDs.
type TacticTechniqueLink struct {
	TacticExternalID    string
	TechniqueExternalID string
}

// StixLink relates two objects by their STIX IDs.
type StixLink struct {
	SourceStixID string
	TargetStixID string
}

// ParsedAttackData is the full output of one collection parse.
type ParsedAttackData struct {
	Tactics              []ParsedTactic
	Techniques           []ParsedTechnique
	Actors               []ParsedActor
	Campaigns            []ParsedCampaign
	TacticTechniqueLinks []TacticTechniqueLink
	// ActorTechniqueLinks holds intrusion-set -> attack-pattern uses edges.
	ActorTechniqueLinks []StixLink
	// CampaignTechniqueLinks holds campaign -> attack-pattern uses edges.
	CampaignTechniqueLinks []StixLink
	// CampaignActorLinks holds campaign/actor attribution. ATT&CK data has
	// shipped the uses edge in both directions over the years, so both are
	// accepted and stored campaign-first.
	CampaignActorLinks []StixLink
}

// TechniqueExternalID resolves an attack-pattern STIX ID to its ATT&CK
// external ID, or "" when the technique was not part of this parse.
func (d *ParsedAttackData) TechniqueExternalID(stixID string) string {
	for _, technique := range d.Techniques {
		if technique.StixID == stixID {
			return technique.ExternalID
		}
	}
	return ""
}

func attackExternalID(references []externalReference) string {
	for _, reference := range references {
		if reference.SourceName == "mitre-attack" && reference.ExternalID != "" {
			return reference.ExternalID
		}
	}
	return ""
}

func parseStixDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000Z"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return &parsed
		}
	}
	return nil
}

// ParseAttackObjects turns a raw STIX object array into typed ATT&CK
// entities and relationship sets. Objects without the mitre-attack external
// reference are skipped; attack-patterns must carry a T-prefixed ID so
// mitigations and data sources in the same collection don't leak in.
func ParseAttackObjects(rawObjects []any) *ParsedAttackData {
	objects := make([]stixObject, 0, len(rawObjects))
	for _, raw := range rawObjects {
		encoded, err := json.Marshal(raw)
		if err != nil {
			continue
		}
		var object stixObject
		if err := json.Unmarshal(encoded, &object); err != nil {
			continue
		}
		if object.ID != "" && object.Type != "" {
			objects = append(objects, object)
		}
	}

	data := &ParsedAttackData{}
	tacticByShortName := make(map[string]string)
	techniqueStixIDs := make(map[string]struct{})

	for _, object := range objects {
		switch object.Type {
		case "x-mitre-tactic":
			externalID := attackExternalID(object.ExternalReferences)
			if externalID == "" {
				continue
			}
			if object.MitreShortname != "" {
				tacticByShortName[object.MitreShortname] = externalID
			}
			name := object.Name
			if name == "" {
				name = externalID
			}
			data.Tactics = append(data.Tactics, ParsedTactic{
				ExternalID:  externalID,
				Name:        name,
				ShortName:   object.MitreShortname,
				Description: object.Description,
				Platforms:   object.MitrePlatforms,
			})

		case "attack-pattern":
			externalID := attackExternalID(object.ExternalReferences)
			if externalID == "" || !strings.HasPrefix(externalID, "T") {
				continue
			}
			var tacticShortNames []string
			for _, phase := range object.KillChainPhases {
				if phase.KillChainName == "mitre-attack" && phase.PhaseName != "" {
					tacticShortNames = append(tacticShortNames, phase.PhaseName)
				}
			}
			name := object.Name
			if name == "" {
				name = externalID
			}
			data.Techniques = append(data.Techniques, ParsedTechnique{
				ExternalID:       externalID,
				StixID:           object.ID,
				Name:             name,
				Description:      object.Description,
				IsSubTechnique:   object.IsSubTechnique,
				Revoked:          object.Revoked,
				Platforms:        object.MitrePlatforms,
				TacticShortNames: tacticShortNames,
			})
			techniqueStixIDs[object.ID] = struct{}{}

		case "intrusion-set":
			name := object.Name
			if name == "" {
				name = object.ID
			}
			data.Actors = append(data.Actors, ParsedActor{
				ExternalID:  attackExternalID(object.ExternalReferences),
				StixID:      object.ID,
				Name:        name,
				Description: object.Description,
				Aliases:     object.Aliases,
			})

		case "campaign":
			name := object.Name
			if name == "" {
				name = object.ID
			}
			data.Campaigns = append(data.Campaigns, ParsedCampaign{
				ExternalID:  attackExternalID(object.ExternalReferences),
				StixID:      object.ID,
				Name:        name,
				Description: object.Description,
				FirstSeen:   parseStixDate(object.FirstSeen),
				LastSeen:    parseStixDate(object.LastSeen),
			})
		}
	}

	for _, technique := range data.Techniques {
		for _, shortName := range technique.TacticShortNames {
			tacticExternalID, ok := tacticByShortName[shortName]
			if !ok {
				continue
			}
			data.TacticTechniqueLinks = append(data.TacticTechniqueLinks, TacticTechniqueLink{
				TacticExternalID:    tacticExternalID,
				TechniqueExternalID: technique.ExternalID,
			})
		}
	}

	for _, object := range objects {
		if object.Type != "relationship" || object.RelationshipType != "uses" {
			continue
		}
		source, target := object.SourceRef, object.TargetRef
		if source == "" || target == "" {
			continue
		}

		switch {
		case strings.HasPrefix(source, "intrusion-set--") && strings.HasPrefix(target, "attack-pattern--"):
			if _, ok := techniqueStixIDs[target]; ok {
				data.ActorTechniqueLinks = append(data.ActorTechniqueLinks, StixLink{SourceStixID: source, TargetStixID: target})
			}
		case strings.HasPrefix(source, "campaign--") && strings.HasPrefix(target, "attack-pattern--"):
			if _, ok := techniqueStixIDs[target]; ok {
				data.CampaignTechniqueLinks = append(data.CampaignTechniqueLinks, StixLink{SourceStixID: source, TargetStixID: target})
			}
		case strings.HasPrefix(source, "campaign--") && strings.HasPrefix(target, "intrusion-set--"):
			data.CampaignActorLinks = append(data.CampaignActorLinks, StixLink{SourceStixID: source, TargetStixID: target})
		case strings.HasPrefix(source, "intrusion-set--") && strings.HasPrefix(target, "campaign--"):
			data.CampaignActorLinks = append(data.CampaignActorLinks, StixLink{SourceStixID: target, TargetStixID: source})
		}
	}

	return data
}
