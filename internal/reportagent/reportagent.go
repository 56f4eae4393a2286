// Package reportagent emits create-report and emit-label requests to
// the moderation service, and exposes the "already processed" view
// polled from the auxiliary DB so callers higher up can dedupe.
package reportagent

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/atscope/modguard/internal/httpx"
	"github.com/atscope/modguard/pkg/mlog"
)

// AccessTokenSource supplies the bearer token for outbound requests;
// satisfied by *session.Session.
type AccessTokenSource interface {
	AccessToken() string
}

// PollInterval is how often the already-processed view is refreshed
// from the moderation DB.
const PollInterval = 15 * time.Minute

// ProcessedSource reads the set of dids the upstream moderation service
// has already actioned, e.g. via a moderation_event table query.
type ProcessedSource interface {
	AlreadyProcessed(ctx context.Context) (map[string]bool, error)
}

// reportSubject is the wire shape of com.atproto.moderation.createReport's
// subject field.
type reportSubject struct {
	Type string `json:"$type"`
	Did  string `json:"did"`
}

type createReportRequest struct {
	ReasonType string        `json:"reasonType"`
	Reason     string        `json:"reason"`
	Subject    reportSubject `json:"subject"`
}

type createReportResponse struct {
	CreatedAt  string `json:"createdAt"`
	ID         int64  `json:"id"`
	ReportedBy string `json:"reportedBy"`
}

type labelEvent struct {
	Type            string   `json:"$type"`
	CreateLabelVals []string `json:"createLabelVals"`
	NegateLabelVals []string `json:"negateLabelVals"`
}

type emitEventLabelRequest struct {
	Event     labelEvent    `json:"event"`
	Subject   reportSubject `json:"subject"`
	CreatedBy string        `json:"createdBy"`
}

type emitEventLabelResponse struct {
	CreatedAt string `json:"createdAt"`
	ID        int64  `json:"id"`
	CreatedBy string `json:"createdBy"`
}

// Config bundles the handle/service identity used to build requests.
type Config struct {
	Did        string
	ServiceDid string
	DryRun     bool
}

// Agent owns the session, already-processed membership cache, and the
// in-memory "reported this run" dedupe set.
type Agent struct {
	client  *httpx.Client
	session AccessTokenSource
	source  ProcessedSource
	cfg     Config

	mu        sync.RWMutex
	processed map[string]bool
	reported  map[string]bool
}

// New constructs an Agent. Call Start to begin the periodic poll.
func New(client *httpx.Client, sess AccessTokenSource, source ProcessedSource, cfg Config) *Agent {
	return &Agent{
		client:    client,
		session:   sess,
		source:    source,
		cfg:       cfg,
		processed: map[string]bool{},
		reported:  map[string]bool{},
	}
}

// Start runs the 15-minute already-processed poll until ctx is done.
func (a *Agent) Start(ctx context.Context) {
	a.refresh(ctx)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.refresh(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *Agent) refresh(ctx context.Context) {
	processed, err := a.source.AlreadyProcessed(ctx)
	if err != nil {
		mlog.Errorf("reportagent: already-processed refresh failed: %v", err)
		return
	}
	a.mu.Lock()
	a.processed = processed
	a.mu.Unlock()
}

// AlreadyProcessed reports whether did has already been actioned
// upstream, per the most recent poll.
func (a *Agent) AlreadyProcessed(did string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.processed[did]
}

// IsReported reports whether this process instance has already
// reported did during its lifetime.
func (a *Agent) IsReported(did string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.reported[did]
}

func (a *Agent) markReported(did string) {
	a.mu.Lock()
	a.reported[did] = true
	a.mu.Unlock()
}

func (a *Agent) authHeaders() {
	a.client.SetHeader("Authorization", "Bearer "+a.session.AccessToken())
	a.client.SetHeader("Atproto-Accept-Labelers", a.cfg.ServiceDid)
	a.client.SetHeader("Atproto-Proxy", a.cfg.ServiceDid+"#atproto_labeler")
}

// StringMatchReport reports did for filter/path matches surfaced by the
// rule matcher.
func (a *Agent) StringMatchReport(ctx context.Context, did string, filters, paths []string) {
	reason := mustEncodeJSON(filterMatchInfo{Descriptor: "rule-match", Filters: filters, Paths: paths})
	a.createReport(ctx, did, reason)
}

// LinkRedirectionReport reports did for a redirect chain that exceeded
// the configured hop limit.
func (a *Agent) LinkRedirectionReport(ctx context.Context, did, path string, chain []string) {
	reason := mustEncodeJSON(linkRedirectionInfo{Descriptor: "link-redirection", Path: path, URIs: chain})
	a.createReport(ctx, did, reason)
}

type filterMatchInfo struct {
	Descriptor string   `json:"descriptor"`
	Filters    []string `json:"filters"`
	Paths      []string `json:"paths"`
}

type linkRedirectionInfo struct {
	Descriptor string   `json:"descriptor"`
	Path       string   `json:"path"`
	URIs       []string `json:"uris"`
}

func (a *Agent) createReport(ctx context.Context, did, reason string) {
	a.markReported(did)
	if a.cfg.DryRun {
		mlog.Infof("reportagent: dry-run report of %s: %s", did, reason)
		return
	}
	a.authHeaders()
	defer a.client.ClearHeader("Authorization")

	req := createReportRequest{
		ReasonType: "com.atproto.moderation.defs#reasonOther",
		Reason:     reason,
		Subject:    reportSubject{Type: "com.atproto.admin.defs#repoRef", Did: did},
	}
	var resp createReportResponse
	if err := a.client.Post(ctx, "com.atproto.moderation.createReport", req, &resp); err != nil {
		mlog.Errorf("reportagent: create report of %s failed: %v", did, err)
		return
	}
	mlog.Infof("reportagent: report of %s recorded at %s, reporter %s id=%d", did, resp.CreatedAt, resp.ReportedBy, resp.ID)
}

// BlocksModerationReport reports did for suspicious blocking activity
// and attaches a "blocks" label to the same subject.
func (a *Agent) BlocksModerationReport(ctx context.Context, did string) {
	a.markReported(did)
	if a.cfg.DryRun {
		mlog.Infof("reportagent: dry-run report of %s as blocks-moderation", did)
		return
	}
	a.authHeaders()
	req := createReportRequest{
		ReasonType: "com.atproto.moderation.defs#reasonOther",
		Reason:     "Auto-report: blocks moderation",
		Subject:    reportSubject{Type: "com.atproto.admin.defs#repoRef", Did: did},
	}
	var resp createReportResponse
	err := a.client.Post(ctx, "com.atproto.moderation.createReport", req, &resp)
	a.client.ClearHeader("Authorization")
	if err != nil {
		mlog.Errorf("reportagent: blocks-moderation report of %s failed: %v", did, err)
		return
	}
	mlog.Infof("reportagent: blocks-moderation report of %s recorded at %s id=%d", did, resp.CreatedAt, resp.ID)
	a.LabelAccount(ctx, did, []string{"blocks"})
}

// LabelAccount issues an emitEvent label request augmenting a prior
// report.
func (a *Agent) LabelAccount(ctx context.Context, did string, labels []string) {
	if a.cfg.DryRun {
		mlog.Infof("reportagent: dry-run label of %s for %v", did, labels)
		return
	}
	a.authHeaders()
	defer a.client.ClearHeader("Authorization")

	req := emitEventLabelRequest{
		Event:     labelEvent{Type: "tools.ozone.moderation.defs#modEventLabel", CreateLabelVals: labels},
		Subject:   reportSubject{Type: "com.atproto.admin.defs#repoRef", Did: did},
		CreatedBy: a.cfg.Did,
	}
	var resp emitEventLabelResponse
	if err := a.client.Post(ctx, "tools.ozone.moderation.emitEvent", req, &resp); err != nil {
		mlog.Errorf("reportagent: label of %s failed: %v", did, err)
		return
	}
	mlog.Infof("reportagent: label of %s recorded at %s, created by %s id=%d", did, resp.CreatedAt, resp.CreatedBy, resp.ID)
}

func mustEncodeJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
