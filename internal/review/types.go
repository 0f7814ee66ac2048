package review

import "strings"

type Finding string

const (
	FindingDeficient     Finding = "Deficient"
	FindingNonDeficient  Finding = "Non-Deficient"
	FindingNotApplicable Finding = "Not-Applicable"
)

// Code returns the short finding code used in the rendered documents.
func (f Finding) Code() string {
	switch f {
	case FindingDeficient:
		return "D"
	case FindingNonDeficient:
		return "ND"
	default:
		return "NA"
	}
}

// Control is a single assessment record fetched from the data source.
type Control struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Comment    string `json:"comment"`
	StatusCode string `json:"status_code,omitempty"`
}

type Deficiency struct {
	Control string `json:"control"`
	Comment string `json:"comment"`
	// Trigger is the keyword or the status code that marked the control deficient.
	Trigger string `json:"trigger"`
}

type AreaResult struct {
	Area         string       `json:"area"`
	Finding      Finding      `json:"finding"`
	Deficiencies []Deficiency `json:"deficiencies"`
	ControlCount int          `json:"control_count"`
}

type Consolidation struct {
	Areas             []AreaResult `json:"areas"`
	TotalControls     int          `json:"total_controls"`
	UnmatchedControls int          `json:"unmatched_controls"`
	UnmatchedNames    []string     `json:"unmatched_names,omitempty"`
}

type Summary struct {
	DeficiencyCount int      `json:"deficiency_count"`
	DeficientAreas  []string `json:"deficiency_areas"`
	ReviewAreaCount int      `json:"review_area_count"`
}

func (c *Consolidation) Summary() Summary {
	s := Summary{DeficientAreas: []string{}, ReviewAreaCount: len(c.Areas)}
	for _, a := range c.Areas {
		if a.Finding != FindingDeficient {
			continue
		}
		s.DeficiencyCount += len(a.Deficiencies)
		s.DeficientAreas = append(s.DeficientAreas, a.Area)
	}
	return s
}

// Area returns the result for the named area, matched case-insensitively.
func (c *Consolidation) Area(name string) (AreaResult, bool) {
	for _, a := range c.Areas {
		if strings.EqualFold(a.Area, name) {
			return a, true
		}
	}
	return AreaResult{}, false
}
