package analysis

import "fmt"

// Category identifies the kind of registrability issue being analyzed.
type Category string

const (
	LikelihoodOfConfusion Category = "likelihood_of_confusion"
	Descriptiveness       Category = "descriptiveness"
	Genericness           Category = "genericness"
	SpecimenDeficiency    Category = "specimen_deficiency"
	IdentificationIssue   Category = "identification_issue"
	OwnershipIssue        Category = "ownership_issue"
	FilingBasisIssue      Category = "filing_basis_issue"
	ProceduralIssue       Category = "procedural_issue"
)

// Categories lists every category in a stable order.
var Categories = []Category{
	LikelihoodOfConfusion,
	Descriptiveness,
	Genericness,
	SpecimenDeficiency,
	IdentificationIssue,
	OwnershipIssue,
	FilingBasisIssue,
	ProceduralIssue,
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown issue category %q", s)
}

// Substantive reports whether the category is a substantive refusal ground
// (as opposed to a procedural requirement).
func (c Category) Substantive() bool {
	switch c {
	case LikelihoodOfConfusion, Descriptiveness, Genericness:
		return true
	}
	return false
}

// Discretionary reports whether the outcome of the category depends mainly
// on examiner judgement.
func (c Category) Discretionary() bool {
	return c == LikelihoodOfConfusion || c == Descriptiveness
}

// Label is a human readable description of the category.
func (c Category) Label() string {
	switch c {
	case LikelihoodOfConfusion:
		return "likelihood of confusion"
	case Descriptiveness:
		return "descriptiveness"
	case Genericness:
		return "genericness"
	case SpecimenDeficiency:
		return "specimen requirements"
	case IdentificationIssue:
		return "identification of goods and services"
	case OwnershipIssue:
		return "ownership"
	case FilingBasisIssue:
		return "filing basis"
	case ProceduralIssue:
		return "procedural requirements"
	}
	return string(c)
}
