package dispatch

import (
	"context"

	"github.com/atscope/modguard/internal/actionrouter"
	"github.com/atscope/modguard/internal/rules"
)

// RedirectReportAgent is the subset of internal/reportagent's API the
// embed reporter adapter needs.
type RedirectReportAgent interface {
	LinkRedirectionReport(ctx context.Context, did, path string, chain []string)
}

// RedirectCounter is the subset of a Prometheus counter the adapter
// needs; a prometheus.Counter satisfies it with no wrapper required.
type RedirectCounter interface {
	Inc()
}

// EmbedReporter adapts internal/embed's narrow Reporter interface onto
// the rule matcher, action router, and report agent, so 4.H's per-hop
// redirect matching and overflow reporting reach 4.D/4.I/4.J without
// internal/embed importing any of them directly.
type EmbedReporter struct {
	matcher Matcher
	router  ActionQueue
	agent   RedirectReportAgent
	counter RedirectCounter // may be nil
}

// NewEmbedReporter constructs an EmbedReporter. counter may be nil if
// metrics are not wired.
func NewEmbedReporter(matcher Matcher, router ActionQueue, agent RedirectReportAgent, counter RedirectCounter) *EmbedReporter {
	return &EmbedReporter{matcher: matcher, router: router, agent: agent, counter: counter}
}

// MatchText implements internal/embed.Reporter: a per-hop redirect URL
// is matched against the rule set; a hit enqueues an action per 4.H.
func (e *EmbedReporter) MatchText(did, path, text string) {
	matches := e.matcher.AllMatchesForCandidates([]rules.Candidate{
		{RecordType: "embed.redirect", FieldName: "hop", Value: text},
	})
	if len(matches) == 0 {
		return
	}
	_ = e.router.Enqueue(context.Background(), actionrouter.AccountMatches{
		Did: did,
		Matches: []actionrouter.MatchResult{{
			Path:       path,
			RecordType: "embed.redirect",
			Matches:    matches,
		}},
	})
}

// ReportRedirectOverflow implements internal/embed.Reporter: the chain
// exceeded UrlRedirectLimit, so the account is reported directly.
func (e *EmbedReporter) ReportRedirectOverflow(did, path string, chain []string) {
	if e.counter != nil {
		e.counter.Inc()
	}
	e.agent.LinkRedirectionReport(context.Background(), did, path, chain)
}
