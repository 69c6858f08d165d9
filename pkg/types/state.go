package types

// AnalysisStates is the list of VEX analysis states understood by the
// converters.
// CycloneDX defines six impact analysis states.
// cf. https://cyclonedx.org/docs/1.6/json/#vulnerabilities_items_analysis_state
//
// SPDX 3.x expresses the same assessments as relationship subtypes
// (VexAffected, VexNotAffected, VexFixed, VexUnderInvestigation); those
// collapse onto this vocabulary during decoding.
var AnalysisStates = []string{
	"resolved",
	"resolved_with_pedigree",
	"exploitable",
	"in_triage",
	"false_positive",
	"not_affected",
}

// ValidAnalysisState reports whether s is a known VEX analysis state.
func ValidAnalysisState(s string) bool {
	for _, state := range AnalysisStates {
		if s == state {
			return true
		}
	}
	return false
}
