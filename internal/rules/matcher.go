package rules

import (
	"sync"

	"github.com/atscope/modguard/internal/text"
	"github.com/atscope/modguard/pkg/mlog"
)

// Candidate is a (record-type, field-name, value) triple extracted from
// a record by the dispatcher, per the record-type-indexed field table.
type Candidate struct {
	RecordType string
	FieldName  string
	Value      string
}

// CandidateMatch is the result of scanning one candidate: the keywords
// (canonical rule targets) that matched and survived their contingent
// predicates.
type CandidateMatch struct {
	Candidate Candidate
	Keywords  []string
}

// predicate implements the two-sub-trie contingent check: a candidate
// passes iff every required keyword-group requirement is satisfied (the
// required sub-trie is empty, or at least one of its patterns is found)
// and no absent-sub-trie pattern is found.
type predicate struct {
	required *trie
	absent   *trie
}

func newPredicate(required, absent []string) predicate {
	rt, at := newTrie(), newTrie()
	for _, w := range required {
		rt.insert(w)
	}
	for _, w := range absent {
		at.insert(w)
	}
	rt.build()
	at.build()
	return predicate{required: rt, absent: at}
}

func (p predicate) check(canonicalText string) bool {
	requiredOK := p.required.empty() || p.required.scanAny(canonicalText)
	if !requiredOK {
		return false
	}
	return !p.absent.scanAny(canonicalText)
}

// MatcherState is one hot-swappable generation of compiled rules: a
// substring automaton over every rule target, a whole-word automaton
// over whole-word-mode targets, and the canonical-target -> Rule map
// used to look up scope/predicate/action once a keyword hits.
type MatcherState struct {
	substring *trie
	wholeWord *trie
	byTarget  map[string]Rule
	predicate map[string]predicate
}

// BuildState compiles a MatcherState from parsed rules. Rules with
// Track == false are accepted but excluded from both automata — "rule
// is ignored when false" per the action grammar.
func BuildState(rules []Rule) *MatcherState {
	st := &MatcherState{
		substring: newTrie(),
		wholeWord: newTrie(),
		byTarget:  map[string]Rule{},
		predicate: map[string]predicate{},
	}
	for _, r := range rules {
		if !r.Track {
			continue
		}
		if _, dup := st.byTarget[r.CanonicalTarget]; dup {
			mlog.Warnf("rules: duplicate-rule: target %q already registered, keeping first", r.Target)
			continue
		}
		st.byTarget[r.CanonicalTarget] = r
		st.predicate[r.CanonicalTarget] = newPredicate(r.RequiredAny, r.AbsentAll)
		st.substring.insert(r.CanonicalTarget)
		if r.Match == MatchWholeWord {
			st.wholeWord.insert(r.CanonicalTarget)
		}
	}
	st.substring.build()
	st.wholeWord.build()
	return st
}

// Matcher owns the current MatcherState behind a reader-writer lock:
// many goroutines may call MatchesAny/AllMatchesForCandidates
// concurrently with a single writer calling Refresh. No match result
// ever mixes keywords from two different states.
type Matcher struct {
	mu    sync.RWMutex
	state *MatcherState
}

// NewMatcher returns a Matcher with an empty initial state.
func NewMatcher() *Matcher {
	return &Matcher{state: BuildState(nil)}
}

// Refresh atomically swaps in a new compiled state.
func (m *Matcher) Refresh(state *MatcherState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// MatchesAny is the fast-path scan against the combined substring
// automaton, ignoring whole-word boundaries and contingent predicates —
// used to decide whether a candidate warrants the fuller scan at all.
// The input is canonicalized first; invalid UTF-8 never matches.
func (m *Matcher) MatchesAny(s string) bool {
	canon, err := text.Canonicalize(s)
	if err != nil {
		return false
	}
	m.mu.RLock()
	st := m.state
	m.mu.RUnlock()
	return st.substring.scanAny(canon)
}

// AllMatchesForCandidates scans every candidate against both automata,
// merges substring and whole-word hits, and drops any whose rule's
// contingent predicate fails against that same candidate's text.
func (m *Matcher) AllMatchesForCandidates(candidates []Candidate) []CandidateMatch {
	m.mu.RLock()
	st := m.state
	m.mu.RUnlock()

	var results []CandidateMatch
	for _, c := range candidates {
		canon, err := text.Canonicalize(c.Value)
		if err != nil {
			continue
		}

		seen := map[string]bool{}
		var keywords []string

		for _, mt := range st.substring.scan(canon) {
			rule, ok := st.byTarget[mt.Word]
			if !ok || rule.Match != MatchSubstring || seen[mt.Word] {
				continue
			}
			if st.predicate[mt.Word].check(canon) {
				seen[mt.Word] = true
				keywords = append(keywords, mt.Word)
			}
		}
		for _, mt := range st.wholeWord.scan(canon) {
			rule, ok := st.byTarget[mt.Word]
			if !ok || rule.Match != MatchWholeWord || seen[mt.Word] {
				continue
			}
			if !text.HasWordBoundaryAt(canon, mt.Start, mt.End-mt.Start) {
				continue
			}
			if st.predicate[mt.Word].check(canon) {
				seen[mt.Word] = true
				keywords = append(keywords, mt.Word)
			}
		}

		if len(keywords) > 0 {
			results = append(results, CandidateMatch{Candidate: c, Keywords: keywords})
		}
	}
	return results
}

// RuleFor returns the rule registered for a canonical target, used by
// callers (the action router) that need scope/labels/block-group after
// a match.
func (m *Matcher) RuleFor(target string) (Rule, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.state.byTarget[target]
	return r, ok
}
