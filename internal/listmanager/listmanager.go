// Package listmanager maintains the platform-side "modlist" records
// used to bucket actioned accounts by rule-defined group name. Lists
// are lazily loaded at start, then grown (and archived once full) as
// accounts are added.
package listmanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atscope/modguard/internal/httpx"
	"github.com/atscope/modguard/pkg/mlog"
	"golang.org/x/time/rate"
)

// QueueCapacity is the Dispatcher(via ActionRouter)->ListManager bound
// from the concurrency model.
const QueueCapacity = 50_000

// DequeueTimeout lets the consumer observe shutdown promptly when idle.
const DequeueTimeout = 10 * time.Second

// MaxItemsInList is the platform's app.bsky.graph.list member cap; once
// an active list reaches it, it is archived and a fresh one created.
// Not a value the upstream service publishes in machine-readable form;
// taken from the platform's documented list-size limit.
const MaxItemsInList = 15_000

// CreateRecordPacing is the minimum spacing between create-record calls
// the list manager issues, replacing the original's fixed 7-second
// sleep with a token bucket so a burst of adds after a restart doesn't
// all fire at once.
const CreateRecordPacing = 7 * time.Second

const graphListCollection = "app.bsky.graph.list"
const graphListItemCollection = "app.bsky.graph.listitem"

// listRecord is the app.bsky.graph.list record shape.
type listRecord struct {
	Type        string `json:"$type"`
	Purpose     string `json:"purpose"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
}

type listItemRecord struct {
	Type      string `json:"$type"`
	Subject   string `json:"subject"`
	List      string `json:"list"`
	CreatedAt string `json:"createdAt"`
}

type listDefinition struct {
	URI           string `json:"uri"`
	Name          string `json:"name"`
	ListItemCount int32  `json:"listItemCount"`
}

type getListsResponse struct {
	Cursor string           `json:"cursor"`
	Lists  []listDefinition `json:"lists"`
}

type itemDefinition struct {
	URI     string `json:"uri"`
	Subject struct {
		Did string `json:"did"`
	} `json:"subject"`
}

type getListResponse struct {
	Cursor string           `json:"cursor"`
	Items  []itemDefinition `json:"items"`
}

// Addition is the unit enqueued by the action router: add did to the
// active list for groupName.
type Addition struct {
	Did       string
	GroupName string
}

// AlreadyActioned reports whether did has already been excluded from
// list-management (e.g. operator allowlist), mirroring the original's
// ozone_adapter.already_processed check before enqueueing a create.
type AlreadyActioned interface {
	AlreadyProcessed(did string) bool
}

// Manager owns the queue, the in-memory group->members index, and the
// rate-limited create-record calls.
type Manager struct {
	client    *httpx.Client
	clientDid string
	dryRun    bool
	dedupe    AlreadyActioned
	limiter   *rate.Limiter

	queue chan Addition

	mu      sync.Mutex
	listURI map[string]string          // group name -> active list at-uri
	members map[string]map[string]bool // group name -> did set
}

// New constructs a Manager. Call LazyLoadManagedLists then Run.
func New(client *httpx.Client, clientDid string, dryRun bool, dedupe AlreadyActioned) *Manager {
	return &Manager{
		client:    client,
		clientDid: clientDid,
		dryRun:    dryRun,
		dedupe:    dedupe,
		limiter:   rate.NewLimiter(rate.Every(CreateRecordPacing), 1),
		queue:     make(chan Addition, QueueCapacity),
		listURI:   map[string]string{},
		members:   map[string]map[string]bool{},
	}
}

// Enqueue hands an addition to the manager, blocking if the queue is
// full.
func (m *Manager) Enqueue(ctx context.Context, a Addition) error {
	select {
	case m.queue <- a:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnqueueAddition is the actionrouter.ListEnqueuer adapter; it drops
// the addition rather than blocking a caller that must not stall on a
// full queue (the action router itself has its own backlog to drain).
func (m *Manager) EnqueueAddition(did, groupName string) {
	select {
	case m.queue <- Addition{Did: did, GroupName: groupName}:
	default:
		mlog.Warnf("listmanager: queue full, dropping addition of %s to %s", did, groupName)
	}
}

// Backlog reports current queue depth for telemetry gauges.
func (m *Manager) Backlog() int { return len(m.queue) }

// Run drains the queue until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case a := <-m.queue:
			m.process(ctx, a)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) process(ctx context.Context, a Addition) {
	if m.dedupe != nil && m.dedupe.AlreadyProcessed(a.Did) {
		mlog.Infof("listmanager: skipping %s for group %s, already processed", a.Did, a.GroupName)
		return
	}
	if m.isMember(a.Did, a.GroupName) {
		mlog.Infof("listmanager: skipping %s, already in group %s", a.Did, a.GroupName)
		return
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return
	}
	m.addAccountToListAndGroup(ctx, a.Did, a.GroupName)
}

func (m *Manager) isMember(did, group string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members[group] != nil && m.members[group][did]
}

func (m *Manager) recordMember(did, group string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[group] == nil {
		m.members[group] = map[string]bool{}
	}
	m.members[group][did] = true
}

func (m *Manager) memberCount(group string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.members[group])
}

func (m *Manager) addAccountToListAndGroup(ctx context.Context, did, group string) {
	m.recordMember(did, group)
	if m.dryRun {
		mlog.Infof("listmanager: dry-run added %s to list group %s", did, group)
		return
	}

	uri, err := m.ensureGroupAvailable(ctx, group)
	if err != nil {
		mlog.Errorf("listmanager: ensure group %s failed: %v", group, err)
		return
	}
	uri, err = m.archiveIfNeeded(ctx, group, uri)
	if err != nil {
		mlog.Errorf("listmanager: archive check for %s failed: %v", group, err)
	}

	req := httpx.PutRecordRequest{
		Repo:       m.clientDid,
		Collection: graphListItemCollection,
		Record: listItemRecord{
			Type:      "app.bsky.graph.listitem",
			Subject:   did,
			List:      uri,
			CreatedAt: nowRFC3339(),
		},
	}
	var resp struct {
		URI string `json:"uri"`
		CID string `json:"cid"`
	}
	if err := m.client.CreateRecord(ctx, req, &resp); err != nil {
		mlog.Errorf("listmanager: add %s to %s failed: %v", did, group, err)
		return
	}
	mlog.Infof("listmanager: added %s to list group %s", did, group)
}

// ensureGroupAvailable returns the active list's at-uri for group,
// creating an empty one if this is the first time it's referenced.
func (m *Manager) ensureGroupAvailable(ctx context.Context, group string) (string, error) {
	m.mu.Lock()
	uri, ok := m.listURI[group]
	m.mu.Unlock()
	if ok {
		return uri, nil
	}
	return m.loadOrCreateList(ctx, group)
}

func (m *Manager) loadOrCreateList(ctx context.Context, name string) (string, error) {
	if m.dryRun {
		mlog.Infof("listmanager: dry-run creation of list %s", name)
		return "", nil
	}
	req := httpx.PutRecordRequest{
		Repo:       m.clientDid,
		Collection: graphListCollection,
		Record: listRecord{
			Type:        "app.bsky.graph.list",
			Purpose:     "app.bsky.graph.defs#modlist",
			Name:        name,
			Description: blockReasonDescription(name),
			CreatedAt:   nowRFC3339(),
		},
	}
	var resp struct {
		URI string `json:"uri"`
		CID string `json:"cid"`
	}
	if err := m.client.CreateRecord(ctx, req, &resp); err != nil {
		return "", fmt.Errorf("listmanager: create list %s: %w", name, err)
	}
	m.mu.Lock()
	m.listURI[name] = resp.URI
	m.mu.Unlock()
	return resp.URI, nil
}

// archiveIfNeeded renames the active list for group with a timestamp
// suffix and replaces it with a fresh empty list once it has grown to
// MaxItemsInList members.
func (m *Manager) archiveIfNeeded(ctx context.Context, group, uri string) (string, error) {
	if m.dryRun {
		return uri, nil
	}
	if m.memberCount(group) < MaxItemsInList {
		return uri, nil
	}

	var record listRecord
	if err := m.client.GetRecord(ctx, m.clientDid, graphListCollection, rkeyOf(uri), &record); err != nil {
		return uri, fmt.Errorf("get active list record: %w", err)
	}
	archivedName := record.Name + "-" + nowRFC3339()
	record.Name = archivedName
	record.Description = record.Description + fmt.Sprintf("\nArchived with %d members", m.memberCount(group))

	putReq := httpx.PutRecordRequest{
		Repo:       m.clientDid,
		Collection: graphListCollection,
		Rkey:       rkeyOf(uri),
		Record:     record,
	}
	if err := m.client.PutRecord(ctx, putReq, nil); err != nil {
		return uri, fmt.Errorf("archive active list: %w", err)
	}

	m.mu.Lock()
	delete(m.members, group)
	delete(m.listURI, group)
	m.mu.Unlock()

	return m.loadOrCreateList(ctx, group)
}

func blockReasonDescription(group string) string {
	return fmt.Sprintf("Automated moderation list for rule group %q", group)
}

func rkeyOf(atURI string) string {
	for i := len(atURI) - 1; i >= 0; i-- {
		if atURI[i] == '/' {
			return atURI[i+1:]
		}
	}
	return atURI
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
