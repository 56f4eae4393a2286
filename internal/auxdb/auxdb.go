// Package auxdb owns the auxiliary relational schema: cursor
// persistence and the rule/host refresh loops described in 4.E. It is
// the only component with write access to firehose_state and
// firehose_checkpoint, and the read path for match_filters and
// popular_hosts.
package auxdb

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-co-op/gocron/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/atscope/modguard/internal/rules"
	"github.com/atscope/modguard/pkg/mlog"
)

const (
	RewindCheckpointInterval   = time.Hour
	MatchFiltersRefreshInterval = 5 * time.Minute
	PopularHostsRefreshInterval = 15 * time.Minute
	flushCursorInterval         = 15 * time.Second
)

// Config selects the backend and connection target. Driver is either
// "sqlite" or "postgres"; DSN is the driver-specific connection string.
// Rewind controls whether Cursor() exposes the persisted last_processed
// value on start, or 0 (a fresh subscription).
type Config struct {
	Driver string
	DSN    string
	Rewind bool
}

// Store is the auxiliary DB client: cursor read/write, and the rule and
// host allowlist refresh loops. It satisfies internal/ingest.CursorSource,
// internal/embed.AllowlistSource, and internal/reportagent.ProcessedSource.
type Store struct {
	db     *sqlx.DB
	driver string

	cursor       atomic.Int64
	lastObserved atomic.Int64 // unix seconds of the latest observed message time; 0 if none yet

	matcher *rules.Matcher

	hostsMu sync.RWMutex
	hosts   map[string]bool
}

// Open connects, runs pending migrations, and loads the starting
// cursor per cfg.Rewind. matcher is refreshed in place by the run loop;
// pass a Matcher already wired into the dispatcher.
func Open(cfg Config, matcher *rules.Matcher) (*Store, error) {
	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("auxdb: open: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// A single-file sqlite database does not benefit from concurrent
		// writers; serialize through one connection like the teacher does.
		db.SetMaxOpenConns(1)
	}

	if err := runMigrations(cfg.Driver, db.DB); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, driver: cfg.Driver, matcher: matcher, hosts: map[string]bool{}}

	var lastProcessed int64
	if err := db.Get(&lastProcessed, "SELECT last_processed FROM firehose_state WHERE id = 1"); err != nil {
		db.Close()
		return nil, fmt.Errorf("auxdb: read cursor: %w", err)
	}
	if cfg.Rewind {
		s.cursor.Store(lastProcessed)
	}

	if err := s.refreshRulesOnce(context.Background()); err != nil {
		mlog.Warnf("auxdb: initial rule load: %v", err)
	}
	if err := s.refreshHostsOnce(context.Background()); err != nil {
		mlog.Warnf("auxdb: initial host load: %v", err)
	}

	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Cursor implements internal/ingest.CursorSource.
func (s *Store) Cursor() int64 { return s.cursor.Load() }

// Observe records the dispatcher's latest processed sequence and
// message time; called once per frame from 4.O.
func (s *Store) Observe(seq int64, at time.Time) {
	s.cursor.Store(seq)
	s.lastObserved.Store(at.Unix())
}

// IsAllowlisted implements internal/embed.AllowlistSource.
func (s *Store) IsAllowlisted(host string) bool {
	s.hostsMu.RLock()
	defer s.hostsMu.RUnlock()
	return s.hosts[host]
}

// AlreadyProcessed implements internal/reportagent.ProcessedSource by
// reading the upstream moderation_event view: any subject with a label
// or acknowledge event is considered already actioned.
func (s *Store) AlreadyProcessed(ctx context.Context) (map[string]bool, error) {
	query, args, err := sq.Select("DISTINCT \"subjectDid\"").
		From("moderation_event").
		Where(sq.Eq{"action": []string{"modEventLabel", "modEventAcknowledge"}}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("auxdb: build already-processed query: %w", err)
	}

	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("auxdb: already-processed query: %w", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var did string
		if err := rows.Scan(&did); err != nil {
			return nil, fmt.Errorf("auxdb: scan already-processed row: %w", err)
		}
		out[did] = true
	}
	return out, rows.Err()
}

// Run drives the periodic loops: cursor flush, checkpoint, rule
// refresh, host refresh. It blocks until ctx is cancelled.
// Run schedules the four refresh/flush jobs on a gocron scheduler and
// blocks until ctx is cancelled, the same periodic-worker shape the
// teacher's task manager uses for its ldap-sync/retention/compression
// jobs, applied here to the cursor and rule/host refresh cycle instead.
func (s *Store) Run(ctx context.Context) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		mlog.Errorf("auxdb: create scheduler: %v", err)
		return
	}

	register := func(interval time.Duration, name string, job func(context.Context) error) {
		if _, err := sched.NewJob(gocron.DurationJob(interval), gocron.NewTask(func() {
			if err := job(ctx); err != nil {
				mlog.Warnf("auxdb: %s: %v", name, err)
			}
		})); err != nil {
			mlog.Errorf("auxdb: register %s job: %v", name, err)
		}
	}

	register(flushCursorInterval, "flush cursor", s.flushCursor)
	register(RewindCheckpointInterval, "write checkpoint", s.writeCheckpoint)
	register(MatchFiltersRefreshInterval, "rule refresh", s.refreshRulesOnce)
	register(PopularHostsRefreshInterval, "host refresh", s.refreshHostsOnce)

	sched.Start()
	<-ctx.Done()
	if err := sched.Shutdown(); err != nil {
		mlog.Warnf("auxdb: scheduler shutdown: %v", err)
	}
}

func (s *Store) flushCursor(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind("UPDATE firehose_state SET last_processed = ? WHERE id = 1"), s.cursor.Load())
	return err
}

func (s *Store) writeCheckpoint(ctx context.Context) error {
	observed := s.lastObserved.Load()
	if observed == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind("INSERT INTO firehose_checkpoint (emitted_at, seq) VALUES (?, ?)"),
		time.Unix(observed, 0).UTC(), s.cursor.Load())
	return err
}

// refreshRulesOnce scans match_filters into a fresh MatcherState under
// a local build, swapping it in only if every row parses. A single bad
// row discards the whole candidate set, per the fail-closed policy.
func (s *Store) refreshRulesOnce(ctx context.Context) error {
	rows, err := s.db.QueryxContext(ctx, "SELECT filter, labels, actions, contingent FROM match_filters")
	if err != nil {
		return fmt.Errorf("connection-broken: %w", err)
	}
	defer rows.Close()

	var parsed []rules.Rule
	for rows.Next() {
		var filter, labels, actions string
		var contingent *string
		if err := rows.Scan(&filter, &labels, &actions, &contingent); err != nil {
			return fmt.Errorf("bad-row: %w", err)
		}
		line := strings.Join([]string{filter, labels, actions}, "|")
		if contingent != nil && *contingent != "" {
			line += "|" + *contingent
		}
		r, err := rules.ParseRule(line)
		if err != nil {
			mlog.Errorf("auxdb: bad-row: discarding rule refresh: %v", err)
			return nil
		}
		parsed = append(parsed, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("connection-broken: %w", err)
	}

	s.matcher.Refresh(rules.BuildState(parsed))
	mlog.Debugf("auxdb: refreshed %d match filters", len(parsed))
	return nil
}

func (s *Store) refreshHostsOnce(ctx context.Context) error {
	rows, err := s.db.QueryxContext(ctx, "SELECT hostname FROM popular_hosts")
	if err != nil {
		return fmt.Errorf("connection-broken: %w", err)
	}
	defer rows.Close()

	next := map[string]bool{}
	for rows.Next() {
		var host string
		if err := rows.Scan(&host); err != nil {
			mlog.Warnf("auxdb: bad-row in popular_hosts: %v", err)
			continue
		}
		next[host] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("connection-broken: %w", err)
	}

	s.hostsMu.Lock()
	s.hosts = next
	s.hostsMu.Unlock()
	mlog.Debugf("auxdb: refreshed %d popular hosts", len(next))
	return nil
}
