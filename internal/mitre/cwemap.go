package mitre

import "strings"

// cweTechniqueMap is a curated, deliberately conservative mapping from CWE
// identifiers to ATT&CK technique IDs. Over-linking makes the vulnerability
// view noisy, so only well-established correspondences are listed.
var cweTechniqueMap = map[string][]string{
	"CWE-79":  {"T1059", "T1189"},
	"CWE-89":  {"T1190"},
	"CWE-22":  {"T1006"},
	"CWE-352": {"T1189"},
	"CWE-287": {"T1078"},
	"CWE-306": {"T1078"},
	"CWE-269": {"T1068"},
	"CWE-862": {"T1068"},
	"CWE-416": {"T1203"},
	"CWE-502": {"T1190", "T1133"},
	"CWE-434": {"T1105"},
	"CWE-918": {"T1190"},
	"CWE-798": {"T1078"},
	"CWE-20":  {"T1190"},
	"CWE-200": {"T1005", "T1552"},
	"CWE-400": {"T1499"},
	"CWE-125": {"T1005"},
}

// LookupTechniquesByCWE returns the technique IDs mapped to a CWE, or nil
// when the CWE is unknown or empty.
func LookupTechniquesByCWE(cwe string) []string {
	if cwe == "" {
		return nil
	}
	return cweTechniqueMap[strings.ToUpper(strings.TrimSpace(cwe))]
}
