package model

import (
	"regexp"
	"strings"
)

// CodeType tags the coding system a billable code belongs to.
type CodeType string

const (
	CodeCPT     CodeType = "CPT"
	CodeHCPCS   CodeType = "HCPCS"
	CodeMSDRG   CodeType = "MS-DRG"
	CodeAPRDRG  CodeType = "APR-DRG"
	CodeNDC     CodeType = "NDC"
	CodeRevenue CodeType = "RC"
	CodeICD10   CodeType = "ICD-10"
	CodeCDM     CodeType = "CDM"
	CodeLocal   CodeType = "Local"
	CodeUnknown CodeType = "UNKNOWN"
)

var (
	cptPattern   = regexp.MustCompile(`^\d{5}$`)
	hcpcsPattern = regexp.MustCompile(`^[A-Za-z]\d{4}$`)
	drgPattern   = regexp.MustCompile(`^\d{3}$`)
	revPattern   = regexp.MustCompile(`^\d{4}$`)
	ndcPattern   = regexp.MustCompile(`^\d{4,5}-\d{3,4}-\d{1,2}$`)
	icd10Pattern = regexp.MustCompile(`^[A-Za-z]\d{2}\.?\d*$`)
)

// DetectCodeType infers a code type from the shape of a bare code value.
// Returns CodeUnknown when the value matches no known billing pattern.
func DetectCodeType(value string) CodeType {
	v := strings.TrimSpace(value)
	switch {
	case v == "":
		return CodeUnknown
	case cptPattern.MatchString(v):
		return CodeCPT
	case hcpcsPattern.MatchString(v):
		return CodeHCPCS
	case drgPattern.MatchString(v):
		return CodeMSDRG
	case revPattern.MatchString(v):
		return CodeRevenue
	case ndcPattern.MatchString(v):
		return CodeNDC
	case icd10Pattern.MatchString(v):
		return CodeICD10
	default:
		return CodeUnknown
	}
}

// codeTypePriority ranks code types when a row carries several codes.
// Lower is better; standardized clinical systems beat local chargemaster IDs.
var codeTypePriority = map[CodeType]int{
	CodeCPT:     1,
	CodeHCPCS:   2,
	CodeMSDRG:   3,
	CodeAPRDRG:  4,
	CodeNDC:     5,
	CodeICD10:   6,
	CodeRevenue: 90,
	CodeCDM:     95,
	CodeLocal:   99,
	CodeUnknown: 100,
}

// CodeTypePriority returns the preference rank for a code type.
func CodeTypePriority(t CodeType) int {
	if p, ok := codeTypePriority[t]; ok {
		return p
	}
	return 100
}

// NormalizeCodeType maps free-text code type labels from source files onto
// the canonical tags.
func NormalizeCodeType(label string) CodeType {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "CPT":
		return CodeCPT
	case "HCPCS":
		return CodeHCPCS
	case "MS-DRG", "MSDRG", "DRG":
		return CodeMSDRG
	case "APR-DRG", "APRDRG":
		return CodeAPRDRG
	case "NDC":
		return CodeNDC
	case "RC", "REV", "REVENUE":
		return CodeRevenue
	case "ICD", "ICD-10", "ICD10":
		return CodeICD10
	case "CDM":
		return CodeCDM
	case "LOCAL":
		return CodeLocal
	case "":
		return CodeUnknown
	default:
		return CodeLocal
	}
}
