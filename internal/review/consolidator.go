package review

import (
	"fmt"
	"strings"
	"unicode"
)

const maxUnmatchedNames = 50

var (
	DefaultDeficiencyKeywords   = []string{"fail", "deficient", "non-compliant", "violation"}
	DefaultDeficientStatusCodes = []string{"D", "DEFICIENT", "FAIL", "FAILED", "NON-COMPLIANT"}
	DefaultNegations            = []string{"non", "no", "not"}
)

// Rules drive per control deficiency detection. Keywords are matched as
// case-insensitive substrings of the comment in order; status codes are the
// structured fallback. A keyword occurrence directly preceded by a negation
// word and a space or dash ("non-deficient", "no violations") does not count.
type Rules struct {
	Keywords    []string
	StatusCodes []string
	Negations   []string
}

func DefaultRules() Rules {
	return Rules{
		Keywords:    DefaultDeficiencyKeywords,
		StatusCodes: DefaultDeficientStatusCodes,
		Negations:   DefaultNegations,
	}
}

type Consolidator struct {
	mapper    Mapper
	areas     []string
	keywords  []string
	negations []string
	codes     map[string]struct{}
}

func NewConsolidator(mapper Mapper, areas []string, rules Rules) *Consolidator {
	c := &Consolidator{
		mapper:   mapper,
		areas:    areas,
		keywords: make([]string, 0, len(rules.Keywords)),
		codes:    make(map[string]struct{}, len(rules.StatusCodes)),
	}
	for _, k := range rules.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			c.keywords = append(c.keywords, k)
		}
	}
	for _, n := range rules.Negations {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			c.negations = append(c.negations, n)
		}
	}
	for _, code := range rules.StatusCodes {
		if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
			c.codes[code] = struct{}{}
		}
	}
	return c
}

// Consolidate groups the controls by review area. The result always holds one
// entry per configured area in configured order. Unmatched controls are counted
// and never fail the call.
func (c *Consolidator) Consolidate(controls []Control) (*Consolidation, error) {
	index, err := c.areaIndex()
	if err != nil {
		return nil, err
	}

	results := make([]AreaResult, len(c.areas))
	for i, area := range c.areas {
		results[i] = AreaResult{Area: area, Finding: FindingNotApplicable, Deficiencies: []Deficiency{}}
	}

	out := &Consolidation{TotalControls: len(controls)}
	for _, control := range controls {
		area, matched := c.mapper.Map(control.Name)
		if !matched {
			out.UnmatchedControls++
			if len(out.UnmatchedNames) < maxUnmatchedNames {
				out.UnmatchedNames = append(out.UnmatchedNames, control.Name)
			}
			continue
		}

		r := &results[index[area]]
		r.ControlCount++

		if trigger, deficient := c.detect(control); deficient {
			r.Finding = FindingDeficient
			r.Deficiencies = append(r.Deficiencies, Deficiency{
				Control: control.Name,
				Comment: control.Comment,
				Trigger: trigger,
			})
		} else if r.Finding == FindingNotApplicable {
			r.Finding = FindingNonDeficient
		}
	}

	out.Areas = results
	return out, nil
}

func (c *Consolidator) detect(control Control) (string, bool) {
	comment := strings.ToLower(control.Comment)
	for _, k := range c.keywords {
		if c.containsAffirmed(comment, k) {
			return k, true
		}
	}
	code := strings.ToUpper(strings.TrimSpace(control.StatusCode))
	if _, ok := c.codes[code]; ok && code != "" {
		return code, true
	}
	return "", false
}

// containsAffirmed reports whether keyword occurs in comment at least once
// without a negation word right before it.
func (c *Consolidator) containsAffirmed(comment, keyword string) bool {
	for offset := 0; offset <= len(comment); {
		i := strings.Index(comment[offset:], keyword)
		if i < 0 {
			return false
		}
		at := offset + i
		if !c.negated(comment[:at]) {
			return true
		}
		offset = at + len(keyword)
	}
	return false
}

func (c *Consolidator) negated(before string) bool {
	if before == "" {
		return false
	}
	if last := before[len(before)-1]; last != ' ' && last != '-' {
		return false
	}
	before = before[:len(before)-1]
	for _, n := range c.negations {
		if !strings.HasSuffix(before, n) {
			continue
		}
		rest := before[:len(before)-len(n)]
		if rest == "" {
			return true
		}
		if r := rune(rest[len(rest)-1]); !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func (c *Consolidator) areaIndex() (map[string]int, error) {
	if len(c.areas) == 0 {
		return nil, fmt.Errorf("no review areas configured")
	}
	index := make(map[string]int, len(c.areas))
	for i, area := range c.areas {
		if _, dup := index[area]; dup {
			return nil, fmt.Errorf("review area %q configured twice", area)
		}
		index[area] = i
	}
	for _, target := range c.mapper.Targets() {
		if _, ok := index[target]; !ok {
			return nil, fmt.Errorf("control mapping targets unknown review area %q", target)
		}
	}
	return index, nil
}
