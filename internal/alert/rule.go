package alert

import (
	"strconv"
	"strings"

	"github.com/seismonet/pipeline/internal/domain"
)

// compiledRule is a parsed AlertRule: a small set of ANDed comparisons
// evaluated against a ClassifiedEvent, plus the level to raise and a
// dedup-key template. Predicates are restricted to this minimal grammar
// deliberately — the rules file is operator-authored config, not
// general-purpose code, so a tiny evaluator is safer than embedding a
// scripting language.
type compiledRule struct {
	level        domain.AlertLevel
	conditions   []condition
	dedupTemplate string
}

type field string

const (
	fieldMagnitudeValue field = "magnitude.value"
	fieldConfidence      field = "classification.confidence"
	fieldLabel           field = "classification.label"
	fieldDepthKM         field = "location.hypocenter.depth_km"
)

type condition struct {
	f     field
	op    string // ">=", "<=", ">", "<", "==", "!="
	numV  float64
	strV  string
	isStr bool
}

// compileRule parses a predicate string of the form
// "field op value [&& field op value ...]" into a compiledRule.
func compileRule(predicate, level, dedupTemplate string) compiledRule {
	cr := compiledRule{level: domain.AlertLevel(level), dedupTemplate: dedupTemplate}
	clauses := strings.Split(predicate, "&&")
	for _, clause := range clauses {
		if c, ok := parseCondition(clause); ok {
			cr.conditions = append(cr.conditions, c)
		}
	}
	return cr
}

func parseCondition(clause string) (condition, bool) {
	clause = strings.TrimSpace(clause)
	for _, op := range []string{">=", "<=", "==", "!=", ">", "<"} {
		idx := strings.Index(clause, op)
		if idx < 0 {
			continue
		}
		fieldName := strings.TrimSpace(clause[:idx])
		valueStr := strings.TrimSpace(clause[idx+len(op):])
		valueStr = strings.Trim(valueStr, `"'`)

		c := condition{f: field(fieldName), op: op}
		if n, err := strconv.ParseFloat(valueStr, 64); err == nil {
			c.numV = n
		} else {
			c.isStr = true
			c.strV = valueStr
		}
		return c, true
	}
	return condition{}, false
}

// matches reports whether ev satisfies all of the rule's conditions.
func (cr compiledRule) matches(ev domain.ClassifiedEvent) bool {
	for _, c := range cr.conditions {
		if !c.evaluate(ev) {
			return false
		}
	}
	return true
}

func (c condition) evaluate(ev domain.ClassifiedEvent) bool {
	if c.isStr {
		var actual string
		switch c.f {
		case fieldLabel:
			actual = ev.Classification.Label
		default:
			return false
		}
		switch c.op {
		case "==":
			return actual == c.strV
		case "!=":
			return actual != c.strV
		default:
			return false
		}
	}

	var actual float64
	switch c.f {
	case fieldMagnitudeValue:
		actual = ev.Magnitude.Value
	case fieldConfidence:
		actual = ev.Classification.Confidence
	case fieldDepthKM:
		actual = ev.Location.Hypocenter.DepthKM
	default:
		return false
	}

	switch c.op {
	case ">=":
		return actual >= c.numV
	case "<=":
		return actual <= c.numV
	case ">":
		return actual > c.numV
	case "<":
		return actual < c.numV
	case "==":
		return actual == c.numV
	case "!=":
		return actual != c.numV
	default:
		return false
	}
}

// renderDedupKey substitutes {{.EventID}} and {{.Candidate.Channel}}
// placeholders in the template — the two fields spec.md's alert rules
// dedup on — with ev's actual values.
func renderDedupKey(template string, ev domain.ClassifiedEvent) string {
	key := strings.ReplaceAll(template, "{{.EventID}}", ev.ID)
	key = strings.ReplaceAll(key, "{{.Candidate.Channel}}", ev.Candidate.Channel.String())
	return key
}
