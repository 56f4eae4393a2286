package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/atscope/modguard/internal/text"
)

// Scope constrains which content a rule applies to.
type Scope string

const (
	ScopeAny     Scope = "any"
	ScopeProfile Scope = "profile"
)

// MatchMode selects substring or whole-word matching for a rule.
type MatchMode string

const (
	MatchSubstring MatchMode = "substring"
	MatchWholeWord MatchMode = "whole-word"
)

// Rule is one parsed match_filters row.
type Rule struct {
	Target          string // original case, as authored in the row
	CanonicalTarget string // folded form, used as the matcher's lookup/trie key
	Labels          []string
	Track           bool
	Report          bool
	Label           bool
	Scope           Scope
	Match           MatchMode
	Block           string
	RequiredAny     []string // canonical
	AbsentAll       []string // canonical
}

// ParseError distinguishes the failure kinds named by the component
// design so a caller can log which kind of failure occurred (auxdb's
// refresh loop logs it and discards the whole refresh).
type ParseError struct {
	Kind string
	Line string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("rules: %s: %q", e.Kind, e.Line)
}

func parseErr(kind, line string) error { return &ParseError{Kind: kind, Line: line} }

// ParseRule parses one pipe-delimited match_filters row:
//
//	target|labels|k=v,k=v,...|contingent
//
// The contingent field is optional (a row may have only three fields).
func ParseRule(line string) (Rule, error) {
	parts := strings.Split(line, "|")
	if len(parts) < 3 {
		return Rule{}, parseErr("too-few-fields", line)
	}
	if len(parts) > 4 {
		return Rule{}, parseErr("too-many-fields", line)
	}

	targetRaw, labelsRaw, actionsRaw := parts[0], parts[1], parts[2]
	contingentRaw := ""
	if len(parts) == 4 {
		contingentRaw = parts[3]
	}

	if strings.TrimSpace(targetRaw) == "" || strings.TrimSpace(labelsRaw) == "" {
		return Rule{}, parseErr("blank-field", line)
	}

	target := strings.TrimSpace(targetRaw)
	canonicalTarget, err := text.Canonicalize(target)
	if err != nil {
		return Rule{}, parseErr("blank-field", line)
	}

	var labels []string
	for _, l := range strings.Split(labelsRaw, ",") {
		l = strings.TrimSpace(l)
		if l != "" {
			labels = append(labels, l)
		}
	}

	r := Rule{
		Target:          target,
		CanonicalTarget: canonicalTarget,
		Labels:          labels,
		Track:           true,
		Scope:           ScopeAny,
		Match:           MatchSubstring,
	}

	if actionsRaw != "" {
		for _, kv := range strings.Split(actionsRaw, ",") {
			kv = strings.TrimSpace(kv)
			if kv == "" {
				continue
			}
			eq := strings.IndexByte(kv, '=')
			if eq < 0 {
				return Rule{}, parseErr("bad-bool", line)
			}
			key, val := strings.TrimSpace(kv[:eq]), strings.TrimSpace(kv[eq+1:])
			switch key {
			case "track":
				b, err := strconv.ParseBool(val)
				if err != nil {
					return Rule{}, parseErr("bad-bool", line)
				}
				r.Track = b
			case "report":
				b, err := strconv.ParseBool(val)
				if err != nil {
					return Rule{}, parseErr("bad-bool", line)
				}
				r.Report = b
			case "label":
				b, err := strconv.ParseBool(val)
				if err != nil {
					return Rule{}, parseErr("bad-bool", line)
				}
				r.Label = b
			case "scope":
				switch Scope(val) {
				case ScopeAny, ScopeProfile:
					r.Scope = Scope(val)
				default:
					return Rule{}, parseErr("bad-scope", line)
				}
			case "match":
				switch MatchMode(val) {
				case MatchSubstring, MatchWholeWord:
					r.Match = MatchMode(val)
				default:
					return Rule{}, parseErr("bad-match", line)
				}
			case "block":
				if strings.Contains(val, "-") {
					return Rule{}, parseErr("bad-block-name", line)
				}
				r.Block = val
			default:
				return Rule{}, parseErr("bad-bool", line)
			}
		}
	}

	if contingentRaw != "" {
		for _, item := range strings.Split(contingentRaw, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			negate := strings.HasPrefix(item, "!")
			if negate {
				item = item[1:]
			}
			canon, err := text.Canonicalize(item)
			if err != nil {
				continue
			}
			if negate {
				r.AbsentAll = append(r.AbsentAll, canon)
			} else {
				r.RequiredAny = append(r.RequiredAny, canon)
			}
		}
	}

	return r, nil
}

// Serialize renders r back to its pipe-delimited textual form. For a
// well-formed rule r, ParseRule(Serialize(r)) == r.
func Serialize(r Rule) string {
	var actions []string
	actions = append(actions, "track="+strconv.FormatBool(r.Track))
	actions = append(actions, "report="+strconv.FormatBool(r.Report))
	actions = append(actions, "label="+strconv.FormatBool(r.Label))
	actions = append(actions, "scope="+string(r.Scope))
	actions = append(actions, "match="+string(r.Match))
	if r.Block != "" {
		actions = append(actions, "block="+r.Block)
	}

	var contingent []string
	contingent = append(contingent, r.RequiredAny...)
	for _, a := range r.AbsentAll {
		contingent = append(contingent, "!"+a)
	}

	fields := []string{r.Target, strings.Join(r.Labels, ","), strings.Join(actions, ",")}
	if len(contingent) > 0 {
		fields = append(fields, strings.Join(contingent, ","))
	}
	return strings.Join(fields, "|")
}
