package mitre

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/vantran-sec/threatsync/internal/intel"
)

// techniqueIDPattern matches ATT&CK technique IDs, including sub-techniques,
// in free-form advisory text.
var techniqueIDPattern = regexp.MustCompile(`\bT\d{4}(?:\.\d{3})?\b`)

// MappingStats summarizes one vulnerability-to-technique mapping pass.
type MappingStats struct {
	Direct int
	CWE    int
	Errors []string
}

// ActorLinkStats summarizes one vulnerability-to-actor linking pass.
type ActorLinkStats struct {
	Linked int
	Errors []string
}

// VulnerabilityMapper links organization vulnerabilities to ATT&CK
// techniques and, transitively, to the actors known to use them. Mapping is
// deterministic: technique IDs mentioned in the advisory text map directly,
// and the vulnerability's CWE maps through the curated table.
type VulnerabilityMapper struct {
	repo intel.Repository
}

// NewVulnerabilityMapper builds the mapper.
func NewVulnerabilityMapper(repo intel.Repository) *VulnerabilityMapper {
	return &VulnerabilityMapper{repo: repo}
}

// directTechniqueIDs extracts technique IDs mentioned anywhere in the
// vulnerability's text or references, deduplicated and sorted.
func directTechniqueIDs(vuln *intel.Vulnerability) []string {
	seen := make(map[string]struct{})
	for _, text := range append([]string{vuln.Title, vuln.Description}, vuln.References...) {
		for _, id := range techniqueIDPattern.FindAllString(text, -1) {
			seen[id] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// knownTechniques filters candidate IDs down to techniques present in the
// knowledge base.
func (m *VulnerabilityMapper) knownTechniques(ctx context.Context, candidates []string) ([]string, error) {
	var known []string
	for _, id := range candidates {
		_, err := m.repo.FindTechniqueByExternalID(ctx, id)
		if errors.Is(err, intel.ErrTechniqueNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		known = append(known, id)
	}
	return known, nil
}

// MapOrganizationVulnerabilities attaches technique mappings to every
// vulnerability the organization tracks. Failures on one vulnerability never
// stop the pass.
func (m *VulnerabilityMapper) MapOrganizationVulnerabilities(ctx context.Context, orgID string) (*MappingStats, error) {
	vulns, err := m.repo.ListOrgVulnerabilities(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing vulnerabilities: %w", err)
	}

	stats := &MappingStats{}

	for _, vuln := range vulns {
		direct, err := m.knownTechniques(ctx, directTechniqueIDs(vuln))
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("Failed to map vulnerability %s: %v", vuln.CVEID, err))
			continue
		}
		for _, techniqueID := range direct {
			err := m.repo.UpsertVulnerabilityTechnique(ctx, intel.TechniqueMapping{
				VulnerabilityID:     vuln.ID,
				TechniqueExternalID: techniqueID,
				Source:              intel.MappingSourceDirect,
				Notes:               "Technique referenced in advisory text",
			})
			if err != nil {
				stats.Errors = append(stats.Errors, fmt.Sprintf("Failed to map vulnerability %s to %s: %v", vuln.CVEID, techniqueID, err))
				continue
			}
			stats.Direct++
		}

		directSet := make(map[string]struct{}, len(direct))
		for _, id := range direct {
			directSet[id] = struct{}{}
		}

		cweCandidates, err := m.knownTechniques(ctx, LookupTechniquesByCWE(vuln.CWEID))
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("Failed to map vulnerability %s: %v", vuln.CVEID, err))
			continue
		}
		for _, techniqueID := range cweCandidates {
			if _, dup := directSet[techniqueID]; dup {
				continue
			}
			err := m.repo.UpsertVulnerabilityTechnique(ctx, intel.TechniqueMapping{
				VulnerabilityID:     vuln.ID,
				TechniqueExternalID: techniqueID,
				Source:              intel.MappingSourceCWE,
				Notes:               fmt.Sprintf("Mapped via %s", vuln.CWEID),
			})
			if err != nil {
				stats.Errors = append(stats.Errors, fmt.Sprintf("Failed to map vulnerability %s to %s: %v", vuln.CVEID, techniqueID, err))
				continue
			}
			stats.CWE++
		}
	}

	return stats, nil
}

// LinkVulnerabilitiesToActors links each vulnerability to the actors known
// to use its mapped techniques. Each actor is linked at most once per
// vulnerability.
func (m *VulnerabilityMapper) LinkVulnerabilitiesToActors(ctx context.Context, orgID string) (*ActorLinkStats, error) {
	vulns, err := m.repo.ListOrgVulnerabilities(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing vulnerabilities: %w", err)
	}

	stats := &ActorLinkStats{}

	for _, vuln := range vulns {
		candidates := directTechniqueIDs(vuln)
		candidates = append(candidates, LookupTechniquesByCWE(vuln.CWEID)...)
		techniques, err := m.knownTechniques(ctx, candidates)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("Failed to link vulnerability %s: %v", vuln.CVEID, err))
			continue
		}

		linkedActors := make(map[string]struct{})
		for _, techniqueID := range techniques {
			actors, err := m.repo.ListActorsUsingTechnique(ctx, techniqueID)
			if err != nil {
				stats.Errors = append(stats.Errors, fmt.Sprintf("Failed to list actors for %s: %v", techniqueID, err))
				continue
			}
			for _, actor := range actors {
				if _, done := linkedActors[actor.ID]; done {
					continue
				}
				err := m.repo.UpsertVulnerabilityActor(ctx, intel.ActorLink{
					VulnerabilityID: vuln.ID,
					ActorID:         actor.ID,
					Source:          intel.MappingSourceCWE,
					Notes:           fmt.Sprintf("Actor uses mapped technique %s", techniqueID),
				})
				if err != nil {
					stats.Errors = append(stats.Errors, fmt.Sprintf("Failed to link vulnerability %s to actor %s: %v", vuln.CVEID, actor.Name, err))
					continue
				}
				linkedActors[actor.ID] = struct{}{}
				stats.Linked++
			}
		}
	}

	return stats, nil
}
