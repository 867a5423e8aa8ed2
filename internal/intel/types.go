// Package intel defines the canonical threat intelligence entities shared by
// the feed adapters, the sync orchestrator, and the correlation engine, plus
// the Repository interface that hides the persistence layer from all of them.
package intel

import "time"

// IndicatorType classifies an observable value.
type IndicatorType string

const (
	TypeIPAddress      IndicatorType = "IP_ADDRESS"
	TypeDomain         IndicatorType = "DOMAIN"
	TypeURL            IndicatorType = "URL"
	TypeFileHashMD5    IndicatorType = "FILE_HASH_MD5"
	TypeFileHashSHA1   IndicatorType = "FILE_HASH_SHA1"
	TypeFileHashSHA256 IndicatorType = "FILE_HASH_SHA256"
	TypeEmail          IndicatorType = "EMAIL"
	TypeCVE            IndicatorType = "CVE"
	TypeRegistryKey    IndicatorType = "REGISTRY_KEY"
	TypeUserAgent      IndicatorType = "USER_AGENT"
)

// Severity orders indicator impact from informational to critical.
type Severity string

const (
	SeverityCritical      Severity = "CRITICAL"
	SeverityHigh          Severity = "HIGH"
	SeverityMedium        Severity = "MEDIUM"
	SeverityLow           Severity = "LOW"
	SeverityInformational Severity = "INFORMATIONAL"
)

// ParseSeverity maps a free-form string to a Severity, returning "" when the
// value is not one of the known levels.
func ParseSeverity(value string) Severity {
	switch Severity(normalizeEnum(value)) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	case SeverityLow:
		return SeverityLow
	case SeverityInformational:
		return SeverityInformational
	default:
		return ""
	}
}

// FeedType categorizes what a feed primarily delivers.
type FeedType string

const (
	FeedTypeCVE         FeedType = "CVE"
	FeedTypeMalware     FeedType = "MALWARE"
	FeedTypeIOC         FeedType = "IOC"
	FeedTypeThreatActor FeedType = "THREAT_ACTOR"
	FeedTypeCampaign    FeedType = "CAMPAIGN"
)

// FeedFormat is the wire format a feed serves.
type FeedFormat string

const (
	FormatJSON  FeedFormat = "JSON"
	FormatCSV   FeedFormat = "CSV"
	FormatTAXII FeedFormat = "TAXII"
)

// CoerceFeedType falls back to IOC for unrecognized values.
func CoerceFeedType(value string) FeedType {
	switch FeedType(normalizeEnum(value)) {
	case FeedTypeCVE, FeedTypeMalware, FeedTypeIOC, FeedTypeThreatActor, FeedTypeCampaign:
		return FeedType(normalizeEnum(value))
	default:
		return FeedTypeIOC
	}
}

// CoerceFeedFormat falls back to JSON for unrecognized values.
func CoerceFeedFormat(value string) FeedFormat {
	switch FeedFormat(normalizeEnum(value)) {
	case FormatJSON, FormatCSV, FormatTAXII:
		return FeedFormat(normalizeEnum(value))
	default:
		return FormatJSON
	}
}

// RunStatus is the lifecycle state of a single feed sync attempt.
type RunStatus string

const (
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusPartial RunStatus = "PARTIAL"
	RunStatusFailed  RunStatus = "FAILED"
)

// MatchStatus is the lifecycle state of an indicator-to-asset match.
type MatchStatus string

const (
	MatchStatusActive        MatchStatus = "ACTIVE"
	MatchStatusResolved      MatchStatus = "RESOLVED"
	MatchStatusFalsePositive MatchStatus = "FALSE_POSITIVE"
)

// ThreatFeed is one configured external source for an organization.
type ThreatFeed struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	Name           string         `json:"name"`
	Source         string         `json:"source"`
	Type           FeedType       `json:"type"`
	Format         FeedFormat     `json:"format"`
	URL            string         `json:"url,omitempty"`
	APIKey         string         `json:"api_key,omitempty"` // sealed envelope, never plaintext
	SyncInterval   int            `json:"sync_interval"`     // seconds
	IsActive       bool           `json:"is_active"`
	Checkpoint     string         `json:"checkpoint,omitempty"`
	LastSync       *time.Time     `json:"last_sync,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// FeedUpsert carries the mutable fields for seeding or reconfiguring a feed.
type FeedUpsert struct {
	Name         string
	Source       string
	Type         FeedType
	Format       FeedFormat
	URL          string
	APIKey       string
	SyncInterval int
	IsActive     *bool
	Metadata     map[string]any
}

// FeedUpdate is a partial update applied after a sync run.
type FeedUpdate struct {
	IsActive     *bool
	SyncInterval *int
	Checkpoint   *string
	APIKey       *string
	URL          *string
	Format       *FeedFormat
	LastSync     *time.Time
}

// ThreatFeedRun records one sync attempt for a feed.
type ThreatFeedRun struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	FeedID         string     `json:"feed_id"`
	Status         RunStatus  `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Fetched        int        `json:"fetched"`
	Created        int        `json:"created"`
	Updated        int        `json:"updated"`
	Skipped        int        `json:"skipped"`
	Errors         []string   `json:"errors,omitempty"`
	Checkpoint     string     `json:"checkpoint,omitempty"`
}

// RunSummary finalizes a feed run.
type RunSummary struct {
	Fetched    int
	Created    int
	Updated    int
	Skipped    int
	Errors     []string
	Checkpoint string
}

// NormalizedIndicator is the adapter output handed to the repository.
type NormalizedIndicator struct {
	Type            IndicatorType
	Value           string
	NormalizedValue string
	Confidence      *int
	Severity        Severity // "" when the source carries no signal
	FirstSeen       time.Time
	LastSeen        time.Time
	ExpiresAt       *time.Time
	Source          string
	Description     string
	Tags            []string
	TacticID        string
	TechniqueID     string
	Metadata        map[string]any
}

// ThreatIndicator is a stored, normalized observable.
//
// Natural key: (OrganizationID, Type, NormalizedValue, FeedID). Re-ingesting
// the same observable from the same feed updates the row in place.
type ThreatIndicator struct {
	ID              string         `json:"id"`
	OrganizationID  string         `json:"organization_id"`
	FeedID          string         `json:"feed_id"`
	Type            IndicatorType  `json:"type"`
	Value           string         `json:"value"`
	NormalizedValue string         `json:"normalized_value"`
	Confidence      *int           `json:"confidence,omitempty"`
	Severity        Severity       `json:"severity,omitempty"`
	FirstSeen       time.Time      `json:"first_seen"`
	LastSeen        time.Time      `json:"last_seen"`
	ExpiresAt       *time.Time     `json:"expires_at,omitempty"`
	Source          string         `json:"source"`
	Description     string         `json:"description,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	TacticID        string         `json:"tactic_id,omitempty"`
	TechniqueID     string         `json:"technique_id,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Expired reports whether the indicator's expiration has passed at now.
func (i *ThreatIndicator) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && !i.ExpiresAt.After(now)
}

// IndicatorFilters narrows indicator listings.
type IndicatorFilters struct {
	Type           IndicatorType
	Severity       Severity
	Search         string
	IncludeExpired bool
}

// MatchInput upserts a ThreatIndicatorMatch by its (indicator, asset, field)
// natural key.
type MatchInput struct {
	IndicatorID    string
	AssetID        string
	OrganizationID string
	MatchField     string
	MatchValue     string
	Confidence     *int
	Status         MatchStatus
	Notes          string
}

// ThreatIndicatorMatch is evidence that an indicator collides with an asset.
type ThreatIndicatorMatch struct {
	ID             string      `json:"id"`
	IndicatorID    string      `json:"indicator_id"`
	AssetID        string      `json:"asset_id"`
	OrganizationID string      `json:"organization_id"`
	MatchField     string      `json:"match_field"`
	MatchValue     string      `json:"match_value"`
	Confidence     *int        `json:"confidence,omitempty"`
	Status         MatchStatus `json:"status"`
	Notes          string      `json:"notes,omitempty"`
	FirstMatchedAt time.Time   `json:"first_matched_at"`
	LastMatchedAt  time.Time   `json:"last_matched_at"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty"`
}

// AttackTactic is a MITRE ATT&CK tactic. Keyed globally by ExternalID; this
// is shared reference data, not per-organization.
type AttackTactic struct {
	ID          string   `json:"id"`
	ExternalID  string   `json:"external_id"` // e.g. TA0002
	Name        string   `json:"name"`
	ShortName   string   `json:"short_name,omitempty"`
	Description string   `json:"description,omitempty"`
	Platforms   []string `json:"platforms,omitempty"`
}

// AttackTechnique is a MITRE ATT&CK technique keyed by ExternalID.
type AttackTechnique struct {
	ID             string   `json:"id"`
	ExternalID     string   `json:"external_id"` // e.g. T1059 or T1059.001
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	IsSubTechnique bool     `json:"is_sub_technique"`
	Revoked        bool     `json:"revoked"`
	Platforms      []string `json:"platforms,omitempty"`
}

// ThreatActor is an intrusion set. ExternalID may be empty for sources
// without stable IDs; dedup then falls back to Name.
type ThreatActor struct {
	ID          string   `json:"id"`
	ExternalID  string   `json:"external_id,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
}

// ThreatCampaign is a named campaign, optionally attributed to an actor.
type ThreatCampaign struct {
	ID          string     `json:"id"`
	ExternalID  string     `json:"external_id,omitempty"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	FirstSeen   *time.Time `json:"first_seen,omitempty"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
	ActorID     string     `json:"actor_id,omitempty"`
}

// MappingSource says how a vulnerability↔technique link was derived.
type MappingSource string

const (
	MappingSourceDirect MappingSource = "DIRECT"
	MappingSourceCWE    MappingSource = "CWE"
	MappingSourceManual MappingSource = "MANUAL"
)

// TechniqueMapping links an organization vulnerability to a technique.
type TechniqueMapping struct {
	VulnerabilityID     string
	TechniqueExternalID string
	Source              MappingSource
	Confidence          *int
	Notes               string
}

// ActorLink links an organization vulnerability to a threat actor.
type ActorLink struct {
	VulnerabilityID string
	ActorID         string
	Source          MappingSource
	Notes           string
}

// Asset is the slice of an organization asset the correlation engine needs.
type Asset struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	IPAddress string         `json:"ip_address,omitempty"`
	Hostname  string         `json:"hostname,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Vulnerability is the slice of an organization vulnerability the
// technique mapper needs.
type Vulnerability struct {
	ID          string   `json:"id"`
	CVEID       string   `json:"cve_id,omitempty"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	CWEID       string   `json:"cwe_id,omitempty"`
	Severity    Severity `json:"severity,omitempty"`
	References  []string `json:"references,omitempty"`
}

// Notification is an alert queued for a user.
type Notification struct {
	UserID  string `json:"user_id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Link    string `json:"link,omitempty"`
}

func normalizeEnum(value string) string {
	out := make([]byte, 0, len(value))
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c == ' ' || c == '\t' {
			continue
		}
		out = append(out, c)
	}
	return string(out)
}
