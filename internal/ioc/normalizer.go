// Package ioc provides pure functions over indicator values: canonical
// normalization per type, shape validation, type inference, and the
// confidence/expiration scoring rules. Nothing here performs I/O.
package ioc

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/vantran-sec/threatsync/internal/intel"
)

var (
	ipv4Pattern   = regexp.MustCompile(`^(25[0-5]|2[0-4]\d|1?\d?\d)(\.(25[0-5]|2[0-4]\d|1?\d?\d)){3}$`)
	ipv6Pattern   = regexp.MustCompile(`^([0-9a-fA-F]{0,4}:){1,7}[0-9a-fA-F]{0,4}$`)
	domainPattern = regexp.MustCompile(`^(?:[a-zA-Z0-9-]+\.)+[a-zA-Z]{2,}$`)
	urlPattern    = regexp.MustCompile(`(?i)^https?://`)
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	md5Pattern    = regexp.MustCompile(`^[a-fA-F0-9]{32}$`)
	sha1Pattern   = regexp.MustCompile(`^[a-fA-F0-9]{40}$`)
	sha256Pattern = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)
	cvePattern    = regexp.MustCompile(`(?i)^CVE-\d{4}-\d{4,}$`)
)

// normalizeURLValue canonicalizes a URL: lowercase host, default port
// stripped, one trailing slash removed from the path. Unparseable input
// falls back to lowercase+trim; this function never fails.
func normalizeURLValue(value string) string {
	trimmed := strings.TrimSpace(value)
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.ToLower(trimmed)
	}

	host := strings.ToLower(parsed.Hostname())
	port := parsed.Port()
	if (parsed.Scheme == "http" && port == "80") || (parsed.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		parsed.Host = host + ":" + port
	} else {
		parsed.Host = host
	}

	if strings.HasSuffix(parsed.Path, "/") {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	}

	return parsed.String()
}

func normalizeDomainValue(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	return strings.TrimSuffix(normalized, ".")
}

// NormalizeValue canonicalizes raw under the rules for the given type.
// Idempotent: normalizing an already-normalized value is a no-op.
func NormalizeValue(indicatorType intel.IndicatorType, raw string) string {
	switch indicatorType {
	case intel.TypeIPAddress,
		intel.TypeFileHashMD5, intel.TypeFileHashSHA1, intel.TypeFileHashSHA256,
		intel.TypeEmail:
		return strings.ToLower(strings.TrimSpace(raw))
	case intel.TypeDomain:
		return normalizeDomainValue(raw)
	case intel.TypeURL:
		return normalizeURLValue(raw)
	case intel.TypeCVE:
		return strings.ToUpper(strings.TrimSpace(raw))
	case intel.TypeRegistryKey, intel.TypeUserAgent:
		return strings.TrimSpace(raw)
	default:
		return strings.ToLower(strings.TrimSpace(raw))
	}
}

// IsValidValue applies type-specific shape validation. Unstructured types
// (registry keys, user agents) pass any non-empty value.
func IsValidValue(indicatorType intel.IndicatorType, value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return false
	}

	switch indicatorType {
	case intel.TypeIPAddress:
		return ipv4Pattern.MatchString(trimmed) || ipv6Pattern.MatchString(trimmed)
	case intel.TypeDomain:
		return domainPattern.MatchString(trimmed)
	case intel.TypeURL:
		return urlPattern.MatchString(trimmed)
	case intel.TypeEmail:
		return emailPattern.MatchString(trimmed)
	case intel.TypeFileHashMD5:
		return md5Pattern.MatchString(trimmed)
	case intel.TypeFileHashSHA1:
		return sha1Pattern.MatchString(trimmed)
	case intel.TypeFileHashSHA256:
		return sha256Pattern.MatchString(trimmed)
	case intel.TypeCVE:
		return cvePattern.MatchString(trimmed)
	default:
		return true
	}
}

// GuessType infers an indicator type from a bare value. Precedence matters:
// hash lengths are checked before the domain shape so a 64-hex-character
// string is never misread as a domain. USER_AGENT is the unstructured
// catch-all.
func GuessType(value string) intel.IndicatorType {
	trimmed := strings.TrimSpace(value)

	switch {
	case cvePattern.MatchString(trimmed):
		return intel.TypeCVE
	case sha256Pattern.MatchString(trimmed):
		return intel.TypeFileHashSHA256
	case sha1Pattern.MatchString(trimmed):
		return intel.TypeFileHashSHA1
	case md5Pattern.MatchString(trimmed):
		return intel.TypeFileHashMD5
	case urlPattern.MatchString(trimmed):
		return intel.TypeURL
	case emailPattern.MatchString(trimmed):
		return intel.TypeEmail
	case ipv4Pattern.MatchString(trimmed):
		return intel.TypeIPAddress
	case domainPattern.MatchString(trimmed):
		return intel.TypeDomain
	default:
		return intel.TypeUserAgent
	}
}

// ParseType maps a feed-supplied type string to a known IndicatorType,
// returning "" for unknown values.
func ParseType(value string) intel.IndicatorType {
	switch intel.IndicatorType(strings.ToUpper(strings.TrimSpace(value))) {
	case intel.TypeIPAddress:
		return intel.TypeIPAddress
	case intel.TypeDomain:
		return intel.TypeDomain
	case intel.TypeURL:
		return intel.TypeURL
	case intel.TypeFileHashMD5:
		return intel.TypeFileHashMD5
	case intel.TypeFileHashSHA1:
		return intel.TypeFileHashSHA1
	case intel.TypeFileHashSHA256:
		return intel.TypeFileHashSHA256
	case intel.TypeEmail:
		return intel.TypeEmail
	case intel.TypeCVE:
		return intel.TypeCVE
	case intel.TypeRegistryKey:
		return intel.TypeRegistryKey
	case intel.TypeUserAgent:
		return intel.TypeUserAgent
	default:
		return ""
	}
}
