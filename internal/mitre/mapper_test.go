package mitre

import (
	"context"
	"testing"

	"github.com/vantran-sec/threatsync/internal/intel"
	"github.com/vantran-sec/threatsync/internal/store"
)

func mapperFixture(t *testing.T) (*store.MemoryStore, *VulnerabilityMapper) {
	t.Helper()
	repo := store.NewMemoryStore()
	ctx := context.Background()
	for _, technique := range []intel.AttackTechnique{
		{ExternalID: "T1190", Name: "Exploit Public-Facing Application"},
		{ExternalID: "T1133", Name: "External Remote Services"},
		{ExternalID: "T1059", Name: "Command and Scripting Interpreter"},
	} {
		if _, err := repo.UpsertAttackTechnique(ctx, technique); err != nil {
			t.Fatalf("seeding technique: %v", err)
		}
	}
	return repo, NewVulnerabilityMapper(repo)
}

// ============================================================================
// Technique mapping
// ============================================================================

// TestMapVulnerabilitiesDirect verifies technique IDs mentioned in advisory
// text map directly, ignoring IDs absent from the knowledge base.
func TestMapVulnerabilitiesDirect(t *testing.T) {
	repo, mapper := mapperFixture(t)
	repo.AddVulnerability("org-1", &intel.Vulnerability{
		CVEID:       "CVE-2026-0001",
		Title:       "RCE reachable via T1190",
		Description: "Also referenced in write-ups as T1059 and T9999.",
	})

	stats, err := mapper.MapOrganizationVulnerabilities(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("MapOrganizationVulnerabilities: %v", err)
	}
	if stats.Direct != 2 {
		t.Errorf("direct = %d, want 2 (T9999 is not in the knowledge base)", stats.Direct)
	}
	if stats.CWE != 0 {
		t.Errorf("cwe = %d, want 0", stats.CWE)
	}
	if repo.VulnerabilityTechniqueCount() != 2 {
		t.Errorf("stored mappings = %d, want 2", repo.VulnerabilityTechniqueCount())
	}
}

// TestMapVulnerabilitiesCWEDedup verifies CWE-derived techniques skip the
// ones already mapped directly.
func TestMapVulnerabilitiesCWEDedup(t *testing.T) {
	repo, mapper := mapperFixture(t)
	// CWE-502 maps to T1190 and T1133; T1190 also appears in the text.
	repo.AddVulnerability("org-1", &intel.Vulnerability{
		CVEID:       "CVE-2026-0002",
		Description: "Deserialization flaw, see T1190.",
		CWEID:       "CWE-502",
	})

	stats, err := mapper.MapOrganizationVulnerabilities(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("MapOrganizationVulnerabilities: %v", err)
	}
	if stats.Direct != 1 {
		t.Errorf("direct = %d, want 1", stats.Direct)
	}
	if stats.CWE != 1 {
		t.Errorf("cwe = %d, want 1 (T1190 already mapped directly)", stats.CWE)
	}
}

// TestMapVulnerabilitiesUnknownCWE verifies an unmapped CWE contributes
// nothing.
func TestMapVulnerabilitiesUnknownCWE(t *testing.T) {
	repo, mapper := mapperFixture(t)
	repo.AddVulnerability("org-1", &intel.Vulnerability{CVEID: "CVE-2026-0003", CWEID: "CWE-1337"})

	stats, err := mapper.MapOrganizationVulnerabilities(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("MapOrganizationVulnerabilities: %v", err)
	}
	if stats.Direct != 0 || stats.CWE != 0 {
		t.Errorf("stats = %+v, want zero", stats)
	}
}

// ============================================================================
// Actor linking
// ============================================================================

// TestLinkVulnerabilitiesToActors verifies each actor using a mapped
// technique is linked once per vulnerability, even across techniques.
func TestLinkVulnerabilitiesToActors(t *testing.T) {
	repo, mapper := mapperFixture(t)
	ctx := context.Background()

	apt41, _ := repo.UpsertThreatActor(ctx, intel.ThreatActor{ExternalID: "G0096", Name: "APT41"})
	t1190, _ := repo.FindTechniqueByExternalID(ctx, "T1190")
	t1133, _ := repo.FindTechniqueByExternalID(ctx, "T1133")
	repo.LinkActorTechnique(ctx, apt41.ID, t1190.ID)
	repo.LinkActorTechnique(ctx, apt41.ID, t1133.ID)

	// CWE-502 resolves to both techniques APT41 uses.
	repo.AddVulnerability("org-1", &intel.Vulnerability{CVEID: "CVE-2026-0004", CWEID: "CWE-502"})

	stats, err := mapper.LinkVulnerabilitiesToActors(ctx, "org-1")
	if err != nil {
		t.Fatalf("LinkVulnerabilitiesToActors: %v", err)
	}
	if stats.Linked != 1 {
		t.Errorf("linked = %d, want 1 (same actor via two techniques)", stats.Linked)
	}
	if len(stats.Errors) != 0 {
		t.Errorf("errors = %v", stats.Errors)
	}
}

// TestCWETableLookup verifies lookup normalization and a few fixed rows.
func TestCWETableLookup(t *testing.T) {
	if got := LookupTechniquesByCWE("CWE-89"); len(got) != 1 || got[0] != "T1190" {
		t.Errorf("CWE-89 = %v, want [T1190]", got)
	}
	if got := LookupTechniquesByCWE("CWE-502"); len(got) != 2 {
		t.Errorf("CWE-502 = %v, want two techniques", got)
	}
	if got := LookupTechniquesByCWE(""); got != nil {
		t.Errorf("empty CWE = %v, want nil", got)
	}
}
