package actionrouter

import (
	"context"
	"testing"

	"github.com/atscope/modguard/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDedupe struct {
	processed map[string]bool
	reported  map[string]bool
}

func (f fakeDedupe) AlreadyProcessed(did string) bool { return f.processed[did] }
func (f fakeDedupe) IsReported(did string) bool       { return f.reported[did] }

type fakeRuleLookup struct{ rules map[string]rules.Rule }

func (f fakeRuleLookup) RuleFor(target string) (rules.Rule, bool) {
	r, ok := f.rules[target]
	return r, ok
}

type fakeLists struct{ added []string }

func (f *fakeLists) EnqueueAddition(did, group string) { f.added = append(f.added, did+":"+group) }

type fakeReporter struct {
	did     string
	filters []string
	paths   []string
	calls   int
}

func (f *fakeReporter) StringMatchReport(ctx context.Context, did string, filters, paths []string) {
	f.did, f.filters, f.paths = did, filters, paths
	f.calls++
}

func TestProcessSkipsAlreadyProcessed(t *testing.T) {
	reporter := &fakeReporter{}
	r := New(fakeDedupe{processed: map[string]bool{"did:plc:a": true}}, fakeRuleLookup{}, &fakeLists{}, reporter)
	r.process(context.Background(), AccountMatches{Did: "did:plc:a"})
	assert.Equal(t, 0, reporter.calls)
}

func TestProcessReportsAnyScopeMatch(t *testing.T) {
	lookup := fakeRuleLookup{rules: map[string]rules.Rule{
		"хохол": {Target: "хохол", Report: true, Scope: rules.ScopeAny},
	}}
	reporter := &fakeReporter{}
	r := New(fakeDedupe{}, lookup, &fakeLists{}, reporter)

	r.process(context.Background(), AccountMatches{
		Did: "did:plc:a",
		Matches: []MatchResult{{
			Path: "/text",
			Matches: []rules.CandidateMatch{
				{Keywords: []string{"хохол"}},
			},
		}},
	})

	require.Equal(t, 1, reporter.calls)
	assert.Equal(t, []string{"хохол"}, reporter.filters)
	assert.Equal(t, []string{"/text"}, reporter.paths)
}

func TestProcessReportsOriginalCaseTarget(t *testing.T) {
	// The matcher looks up rules by its folded, lower-cased keyword, but
	// the report sent to the agent must carry the rule's original-case
	// target, not the folded lookup key.
	lookup := fakeRuleLookup{rules: map[string]rules.Rule{
		"хохол": {Target: "Хохол", CanonicalTarget: "хохол", Report: true, Scope: rules.ScopeAny},
	}}
	reporter := &fakeReporter{}
	r := New(fakeDedupe{}, lookup, &fakeLists{}, reporter)

	r.process(context.Background(), AccountMatches{
		Did: "did:plc:a",
		Matches: []MatchResult{{
			Path:    "/text",
			Matches: []rules.CandidateMatch{{Keywords: []string{"хохол"}}},
		}},
	})

	require.Equal(t, 1, reporter.calls)
	assert.Equal(t, []string{"Хохол"}, reporter.filters)
}

func TestProcessSkipsUnreportedRule(t *testing.T) {
	lookup := fakeRuleLookup{rules: map[string]rules.Rule{
		"quiet": {Target: "quiet", Report: false, Scope: rules.ScopeAny},
	}}
	reporter := &fakeReporter{}
	r := New(fakeDedupe{}, lookup, &fakeLists{}, reporter)

	r.process(context.Background(), AccountMatches{
		Did:     "did:plc:a",
		Matches: []MatchResult{{Path: "/text", Matches: []rules.CandidateMatch{{Keywords: []string{"quiet"}}}}},
	})

	assert.Equal(t, 0, reporter.calls)
}

func TestProcessProfileScopeRequiresProfileRecord(t *testing.T) {
	lookup := fakeRuleLookup{rules: map[string]rules.Rule{
		"spammer": {Target: "spammer", Report: true, Scope: rules.ScopeProfile},
	}}
	reporter := &fakeReporter{}
	r := New(fakeDedupe{}, lookup, &fakeLists{}, reporter)

	r.process(context.Background(), AccountMatches{
		Did: "did:plc:a",
		Matches: []MatchResult{{
			Path:       "/text",
			RecordType: "app.bsky.feed.post",
			Matches:    []rules.CandidateMatch{{Keywords: []string{"spammer"}}},
		}},
	})
	assert.Equal(t, 0, reporter.calls)

	r.process(context.Background(), AccountMatches{
		Did: "did:plc:a",
		Matches: []MatchResult{{
			Path:       "/description",
			RecordType: "app.bsky.actor.profile",
			Matches:    []rules.CandidateMatch{{Keywords: []string{"spammer"}}},
		}},
	})
	assert.Equal(t, 1, reporter.calls)
}

func TestProcessEnqueuesBlockList(t *testing.T) {
	lookup := fakeRuleLookup{rules: map[string]rules.Rule{
		"spam": {Target: "spam", Report: true, Scope: rules.ScopeAny, Block: "spammers"},
	}}
	lists := &fakeLists{}
	reporter := &fakeReporter{}
	r := New(fakeDedupe{}, lookup, lists, reporter)

	r.process(context.Background(), AccountMatches{
		Did:     "did:plc:a",
		Matches: []MatchResult{{Path: "/text", Matches: []rules.CandidateMatch{{Keywords: []string{"spam"}}}}},
	})

	require.Len(t, lists.added, 1)
	assert.Equal(t, "did:plc:a:spammers", lists.added[0])
}
