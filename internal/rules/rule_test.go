package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRuleBasic(t *testing.T) {
	r, err := ParseRule("Хохол|slur|track=true,report=true,match=substring")
	require.NoError(t, err)
	assert.Equal(t, "Хохол", r.Target)
	assert.Equal(t, "хохол", r.CanonicalTarget)
	assert.Equal(t, []string{"slur"}, r.Labels)
	assert.True(t, r.Track)
	assert.True(t, r.Report)
	assert.Equal(t, MatchSubstring, r.Match)
	assert.Equal(t, ScopeAny, r.Scope)
}

func TestParseRuleContingent(t *testing.T) {
	r, err := ParseRule("bank|fraud|track=true,report=true,match=substring|scam,!educational")
	require.NoError(t, err)
	assert.Equal(t, []string{"scam"}, r.RequiredAny)
	assert.Equal(t, []string{"educational"}, r.AbsentAll)
}

func TestParseRuleFailureKinds(t *testing.T) {
	cases := map[string]string{
		"too-few-fields":   "onlyonefield",
		"too-many-fields":  "a|b|c|d|e",
		"blank-field":      "|labels|track=true",
		"bad-bool":         "a|b|track=maybe",
		"bad-scope":        "a|b|scope=everything",
		"bad-match":        "a|b|match=fuzzy",
		"bad-block-name":   "a|b|block=has-dash",
	}
	for wantKind, line := range cases {
		_, err := ParseRule(line)
		var pe *ParseError
		if !assertAs(t, err, &pe) {
			continue
		}
		assert_Equal(t, wantKind, pe.Kind, line)
	}
}

func assertAs(t *testing.T, err error, target **ParseError) bool {
	t.Helper()
	pe, ok := err.(*ParseError)
	if !ok {
		t.Errorf("expected *ParseError, got %T (%v)", err, err)
		return false
	}
	*target = pe
	return true
}

func assert_Equal(t *testing.T, want, got, line string) {
	t.Helper()
	if want != got {
		t.Errorf("line %q: expected kind %q, got %q", line, want, got)
	}
}

func TestRuleRoundTrip(t *testing.T) {
	r, err := ParseRule("spamword|abuse,spam|track=true,report=true,label=false,scope=profile,match=whole-word,block=spamlist|req1,req2,!bad1")
	require.NoError(t, err)
	s := Serialize(r)
	r2, err := ParseRule(s)
	require.NoError(t, err)
	assert.Equal(t, r, r2)
}
