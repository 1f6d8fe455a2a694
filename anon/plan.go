package anon

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultPlan names anonymous classes Anon<n>, and Anon<n>_Level<k> when
// nested k levels deep in other anonymous classes.
const DefaultPlan = "Anon[_Level]"

// Plan is a parsed naming plan of the form prefix[levelInfix]. The bracketed
// part is only emitted for levels above one and may be omitted.
type Plan struct {
	Prefix     string
	LevelInfix string
}

func ParsePlan(plan string) (Plan, error) {
	open := strings.IndexByte(plan, '[')
	if open < 0 {
		if strings.ContainsRune(plan, ']') {
			return Plan{}, fmt.Errorf("anonymous class plan %q: unbalanced ']'", plan)
		}
		if plan == "" {
			return Plan{}, fmt.Errorf("anonymous class plan is empty")
		}
		if plan[0] >= '0' && plan[0] <= '9' {
			return Plan{}, fmt.Errorf("anonymous class plan %q: prefix starts with a digit", plan)
		}
		return Plan{Prefix: plan}, nil
	}

	if !strings.HasSuffix(plan, "]") || strings.Count(plan, "[") != 1 || strings.Count(plan, "]") != 1 {
		return Plan{}, fmt.Errorf("anonymous class plan %q: expected prefix[level]", plan)
	}
	p := Plan{Prefix: plan[:open], LevelInfix: plan[open+1 : len(plan)-1]}
	if p.Prefix == "" {
		return Plan{}, fmt.Errorf("anonymous class plan %q: empty prefix", plan)
	}
	if p.Prefix[0] >= '0' && p.Prefix[0] <= '9' {
		return Plan{}, fmt.Errorf("anonymous class plan %q: prefix starts with a digit", plan)
	}
	return p, nil
}

// Name returns the synthetic segment for an anonymous class.
func (p Plan) Name(ordinal int, level int) string {
	name := p.Prefix + strconv.Itoa(ordinal)
	if level > 1 && p.LevelInfix != "" {
		name += p.LevelInfix + strconv.Itoa(level)
	}
	return name
}

func (p Plan) String() string {
	if p.LevelInfix == "" {
		return p.Prefix
	}
	return p.Prefix + "[" + p.LevelInfix + "]"
}
