// Package actionrouter consumes (did, match-results) tuples from the
// dispatcher, dedupes against already-processed/already-reported dids,
// groups surviving matches by record path and rule scope, and forwards
// the filter strings and paths to the report agent.
package actionrouter

import (
	"context"
	"time"

	"github.com/atscope/modguard/internal/rules"
	"github.com/atscope/modguard/pkg/mlog"
)

// QueueCapacity is the Dispatcher->ActionRouter bound from the
// concurrency model.
const QueueCapacity = 1_000

// DequeueTimeout lets the consumer service periodic session checks
// between items even when the queue is idle.
const DequeueTimeout = 10 * time.Second

// RecordType names the record kind a match was found on (e.g.
// "app.bsky.actor.profile"), used for scope-based filtering.
type RecordType string

// MatchResult pairs a record path with every rule match found there.
type MatchResult struct {
	Path       string
	RecordType RecordType
	Matches    []rules.CandidateMatch
}

// AccountMatches is the unit the dispatcher enqueues: everything that
// matched for one account's commit.
type AccountMatches struct {
	Did     string
	Matches []MatchResult
}

// Dedupe is the two-stage skip check: already labeled upstream, or
// already reported by this process instance.
type Dedupe interface {
	AlreadyProcessed(did string) bool
	IsReported(did string) bool
}

// RuleLookup resolves a matched keyword's owning rule so the router can
// read its report/scope/block-list settings.
type RuleLookup interface {
	RuleFor(target string) (rules.Rule, bool)
}

// ListEnqueuer is the subset of the list manager's API the router uses
// when a matched rule names a block-list.
type ListEnqueuer interface {
	EnqueueAddition(did, groupName string)
}

// Reporter is the subset of the report agent's API the router calls.
type Reporter interface {
	StringMatchReport(ctx context.Context, did string, filters, paths []string)
}

// Router owns the bounded queue and dedupe/grouping logic.
type Router struct {
	queue    chan AccountMatches
	dedupe   Dedupe
	matcher  RuleLookup
	lists    ListEnqueuer
	reporter Reporter
}

// New constructs a Router.
func New(dedupe Dedupe, matcher RuleLookup, lists ListEnqueuer, reporter Reporter) *Router {
	return &Router{
		queue:    make(chan AccountMatches, QueueCapacity),
		dedupe:   dedupe,
		matcher:  matcher,
		lists:    lists,
		reporter: reporter,
	}
}

// Enqueue hands matches to the router, blocking if the queue is full.
func (r *Router) Enqueue(ctx context.Context, m AccountMatches) error {
	select {
	case r.queue <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Backlog reports current queue depth for telemetry gauges.
func (r *Router) Backlog() int { return len(r.queue) }

// sessionChecker is called on every timed-dequeue tick, whether or not
// an item arrived, matching the original's interleaved check_refresh.
type sessionChecker interface {
	CheckRefresh(ctx context.Context) error
}

// Run drains the queue until ctx is done, invoking checker.CheckRefresh
// on every tick (including idle ones) so session refresh piggybacks on
// this worker's loop.
func (r *Router) Run(ctx context.Context, checker sessionChecker) {
	for {
		select {
		case m := <-r.queue:
			r.process(ctx, m)
			r.checkRefresh(ctx, checker)
		case <-time.After(DequeueTimeout):
			r.checkRefresh(ctx, checker)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Router) checkRefresh(ctx context.Context, checker sessionChecker) {
	if checker == nil {
		return
	}
	if err := checker.CheckRefresh(ctx); err != nil {
		mlog.Errorf("actionrouter: session refresh failed: %v", err)
	}
}

func (r *Router) process(ctx context.Context, m AccountMatches) {
	if r.dedupe.AlreadyProcessed(m.Did) || r.dedupe.IsReported(m.Did) {
		mlog.Infof("actionrouter: report of %s skipped, already known", m.Did)
		return
	}

	var paths []string
	var allFilters []string
	for _, result := range m.Matches {
		var filters []string
		for _, cm := range result.Matches {
			for _, keyword := range cm.Keywords {
				rule, ok := r.matcher.RuleFor(keyword)
				if !ok || !rule.Report {
					continue
				}
				if rule.Block != "" {
					r.lists.EnqueueAddition(m.Did, rule.Block)
				}
				switch rule.Scope {
				case rules.ScopeAny:
					filters = append(filters, rule.Target)
				case rules.ScopeProfile:
					if result.RecordType == "app.bsky.actor.profile" {
						filters = append(filters, rule.Target)
					}
				}
			}
		}
		if len(filters) > 0 {
			paths = append(paths, result.Path)
			allFilters = append(allFilters, filters...)
		}
	}

	if len(allFilters) > 0 {
		r.reporter.StringMatchReport(ctx, m.Did, allFilters, paths)
	}
}
