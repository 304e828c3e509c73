package rules

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
)

// WildcardCategory is the wire sentinel for rules that match any category.
const WildcardCategory = "any"

// Rule is a sealed variant: SpecificRule or WildcardRule. Keeping the set
// closed means the matcher is exhaustive and a new rule shape cannot fall
// through silently.
type Rule interface {
	RequiredLevel() string
	RequiredCount() int
	isRule()
}

// SpecificRule requires Count badges of exactly Category at Level.
type SpecificRule struct {
	Category string
	Level    string
	Count    int
}

func (r SpecificRule) RequiredLevel() string { return r.Level }
func (r SpecificRule) RequiredCount() int { return r.Count }
func (SpecificRule) isRule() {}

// WildcardRule requires Count badges of any category at Level. Wildcards are
// evaluated only after every specific rule has taken its share of the pool.
type WildcardRule struct {
	Level string
	Count int
}

func (r WildcardRule) RequiredLevel() string { return r.Level }
func (r WildcardRule) RequiredCount() int { return r.Count }
func (WildcardRule) isRule() {}

// Badge is the frozen (category, level) pair of one reserved badge
// application. Order matters: badges are consumed in arrival order.
type Badge struct {
	Category string
	Level    string
}

// RuleResult reports one rule's satisfaction. Category is "any" for
// wildcard rules.
type RuleResult struct {
	Category  string `json:"category"`
	Level     string `json:"level"`
	Required  int    `json:"required"`
	Current   int    `json:"current"`
	Satisfied bool   `json:"satisfied"`
}

// Shortfall names the badges still missing for one unsatisfied rule.
type Shortfall struct {
	Category string `json:"category"`
	Level    string `json:"level"`
	Count    int    `json:"count"`
}

// Result is the full evaluation report for a promotion.
type Result struct {
	IsValid bool         `json:"isValid"`
	Rules   []RuleResult `json:"rules"`
	Missing []Shortfall  `json:"missing,omitempty"`
}

type ruleJSON struct {
	Category string `json:"category"`
	Level    string `json:"level"`
	Count    int    `json:"count"`
}

// Parse decodes a stored rule list into the sealed variant. It validates
// shape only; duplicate-pair rejection is a template-creation concern, see
// ValidateTemplate.
func Parse(raw json.RawMessage) ([]Rule, error) {
	var items []ruleJSON
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	out := make([]Rule, 0, len(items))
	for i, item := range items {
		category := strings.TrimSpace(item.Category)
		level := strings.TrimSpace(item.Level)
		if level == "" {
			return nil, fmt.Errorf("rule %d: level is required", i)
		}
		if item.Count <= 0 {
			return nil, fmt.Errorf("rule %d: count must be positive", i)
		}
		if category == "" {
			return nil, fmt.Errorf("rule %d: category is required (use %q for wildcard)", i, WildcardCategory)
		}
		if strings.EqualFold(category, WildcardCategory) {
			out = append(out, WildcardRule{Level: level, Count: item.Count})
		} else {
			out = append(out, SpecificRule{Category: category, Level: level, Count: item.Count})
		}
	}
	return out, nil
}

// Marshal encodes rules back into the wire form used by templates.
func Marshal(rs []Rule) (json.RawMessage, error) {
	items := make([]ruleJSON, 0, len(rs))
	for _, r := range rs {
		switch v := r.(type) {
		case SpecificRule:
			items = append(items, ruleJSON{Category: v.Category, Level: v.Level, Count: v.Count})
		case WildcardRule:
			items = append(items, ruleJSON{Category: WildcardCategory, Level: v.Level, Count: v.Count})
		default:
			return nil, fmt.Errorf("unknown rule variant %T", r)
		}
	}
	return json.Marshal(items)
}

// ValidateTemplate enforces template-creation constraints: at least one rule
// and no duplicate (category, level) pairs.
func ValidateTemplate(rs []Rule) error {
	if len(rs) == 0 {
		return fmt.Errorf("template requires at least one rule")
	}
	seen := make(map[string]struct{}, len(rs))
	for _, r := range rs {
		key := pairKey(r)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate rule pair %s", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func pairKey(r Rule) string {
	switch v := r.(type) {
	case SpecificRule:
		return strings.ToLower(v.Category) + "/" + strings.ToLower(v.Level)
	case WildcardRule:
		return WildcardCategory + "/" + strings.ToLower(v.Level)
	default:
		return fmt.Sprintf("%T", r)
	}
}

// Evaluate compares reserved badges against the template rules. Specific
// rules are evaluated first, consuming matching badges in arrival order;
// wildcard rules then consume any remaining badge of the required level.
// A single badge satisfies at most one rule.
//
// A specific rule that cannot reach its full count keeps its partial tally
// for reporting but returns its badges to the pool, so a wildcard at the same
// level may still count them. The shortfall list therefore never names a rule
// the badges could have satisfied.
//
// Duplicate (category, level) pairs are rejected upstream at template
// creation; if one still reaches evaluation it is a data-integrity bug, so it
// is logged loudly. The shrinking pool guarantees it is never double-counted.
func Evaluate(rs []Rule, badges []Badge) Result {
	logDuplicates(rs)

	used := make([]bool, len(badges))
	results := make([]RuleResult, len(rs))

	take := func(r Rule, match func(Badge) bool) []int {
		var taken []int
		for i, b := range badges {
			if len(taken) == r.RequiredCount() {
				break
			}
			if used[i] || !match(b) {
				continue
			}
			used[i] = true
			taken = append(taken, i)
		}
		return taken
	}

	for i, r := range rs {
		sr, ok := r.(SpecificRule)
		if !ok {
			continue
		}
		taken := take(r, func(b Badge) bool {
			return b.Category == sr.Category && b.Level == sr.Level
		})
		satisfied := len(taken) == sr.Count
		if !satisfied {
			for _, idx := range taken {
				used[idx] = false
			}
		}
		results[i] = RuleResult{
			Category:  sr.Category,
			Level:     sr.Level,
			Required:  sr.Count,
			Current:   len(taken),
			Satisfied: satisfied,
		}
	}

	for i, r := range rs {
		wr, ok := r.(WildcardRule)
		if !ok {
			continue
		}
		taken := take(r, func(b Badge) bool {
			return b.Level == wr.Level
		})
		results[i] = RuleResult{
			Category:  WildcardCategory,
			Level:     wr.Level,
			Required:  wr.Count,
			Current:   len(taken),
			Satisfied: len(taken) == wr.Count,
		}
	}

	out := Result{IsValid: true, Rules: results}
	for _, rr := range results {
		if rr.Satisfied {
			continue
		}
		out.IsValid = false
		out.Missing = append(out.Missing, Shortfall{
			Category: rr.Category,
			Level:    rr.Level,
			Count:    rr.Required - rr.Current,
		})
	}
	return out
}

func logDuplicates(rs []Rule) {
	seen := make(map[string]struct{}, len(rs))
	for _, r := range rs {
		key := pairKey(r)
		if _, dup := seen[key]; dup {
			log.Printf("[rules] data integrity: duplicate rule pair %s reached evaluation; templates must reject this at creation", key)
		}
		seen[key] = struct{}{}
	}
}
