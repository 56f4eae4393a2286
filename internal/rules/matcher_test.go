package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcherSingleMatch(t *testing.T) {
	r, err := ParseRule("Хохол|slur|track=true,report=true,match=substring")
	require.NoError(t, err)
	m := NewMatcher()
	m.Refresh(BuildState([]Rule{r}))

	matches := m.AllMatchesForCandidates([]Candidate{
		{RecordType: "app.bsky.feed.post", FieldName: "/text", Value: "...Хохол..."},
	})
	require.Len(t, matches, 1)
	assert.Equal(t, []string{"хохол"}, matches[0].Keywords)
}

func TestMatcherContingentRejection(t *testing.T) {
	r, err := ParseRule("bank|fraud|track=true,report=true,match=substring|scam,!educational")
	require.NoError(t, err)
	m := NewMatcher()
	m.Refresh(BuildState([]Rule{r}))

	matches := m.AllMatchesForCandidates([]Candidate{
		{RecordType: "app.bsky.feed.post", FieldName: "/text", Value: "educational bank scam"},
	})
	assert.Empty(t, matches)
}

func TestMatcherWholeWordBoundary(t *testing.T) {
	r, err := ParseRule("ban|test|track=true,report=true,match=whole-word")
	require.NoError(t, err)
	m := NewMatcher()
	m.Refresh(BuildState([]Rule{r}))

	matches := m.AllMatchesForCandidates([]Candidate{
		{RecordType: "x", FieldName: "/text", Value: "bank account"},
	})
	assert.Empty(t, matches, "whole-word 'ban' must not match inside 'bank'")

	matches = m.AllMatchesForCandidates([]Candidate{
		{RecordType: "x", FieldName: "/text", Value: "please ban this user"},
	})
	require.Len(t, matches, 1)
}

func TestMatcherHotSwapNeverMixesState(t *testing.T) {
	r1, _ := ParseRule("alpha|l|track=true,match=substring")
	r2, _ := ParseRule("beta|l|track=true,match=substring")
	m := NewMatcher()
	m.Refresh(BuildState([]Rule{r1}))

	matches := m.AllMatchesForCandidates([]Candidate{{RecordType: "x", FieldName: "f", Value: "alpha beta"}})
	require.Len(t, matches, 1)
	assert.Equal(t, []string{"alpha"}, matches[0].Keywords)

	m.Refresh(BuildState([]Rule{r2}))
	matches = m.AllMatchesForCandidates([]Candidate{{RecordType: "x", FieldName: "f", Value: "alpha beta"}})
	require.Len(t, matches, 1)
	assert.Equal(t, []string{"beta"}, matches[0].Keywords)
}

func TestMatcherTrackFalseIgnored(t *testing.T) {
	r, _ := ParseRule("ignored|l|track=false,match=substring")
	m := NewMatcher()
	m.Refresh(BuildState([]Rule{r}))
	assert.False(t, m.MatchesAny("this contains ignored word"))
}
