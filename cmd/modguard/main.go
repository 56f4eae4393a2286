// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/atscope/modguard/internal/actionrouter"
	"github.com/atscope/modguard/internal/activity"
	"github.com/atscope/modguard/internal/auxdb"
	"github.com/atscope/modguard/internal/config"
	"github.com/atscope/modguard/internal/dispatch"
	"github.com/atscope/modguard/internal/embed"
	"github.com/atscope/modguard/internal/httpx"
	"github.com/atscope/modguard/internal/ingest"
	"github.com/atscope/modguard/internal/listmanager"
	"github.com/atscope/modguard/internal/recorder"
	"github.com/atscope/modguard/internal/reportagent"
	"github.com/atscope/modguard/internal/rules"
	"github.com/atscope/modguard/internal/session"
	"github.com/atscope/modguard/internal/telemetry"
	"github.com/atscope/modguard/pkg/mlog"
	"github.com/atscope/modguard/pkg/runtimeEnv"
)

var (
	flagConfigFile  string
	flagVersion     bool
	flagLogDateTime bool
)

func cliInit() {
	flag.StringVar(&flagConfigFile, "config", "./config.yaml", "Specify path to `config.yaml`")
	flag.BoolVar(&flagVersion, "version", false, "Show version information and exit")
	flag.BoolVar(&flagLogDateTime, "logdate", false, "Set this flag to add date and time to log messages")
	flag.Parse()
}

var (
	date    string = "unknown"
	commit  string = "unknown"
	version string = "development"
)

func main() {
	cliInit()

	if flagVersion {
		fmt.Printf("modguard version %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	if flagLogDateTime {
		mlog.SetLogDateTime(true)
	}

	if err := config.Init(flagConfigFile); err != nil {
		mlog.Errorf("startup: %v", err)
		os.Exit(1)
	}
	mlog.SetLevel(config.Keys.Logging.Level)

	if os.Getenv("GOGC") == "" {
		debug.SetGCPercent(25)
	}

	ctx, cancel := context.WithCancel(context.Background())

	matcher := rules.NewMatcher()
	if !config.Keys.Filters.UseDB {
		if err := loadRulesFromFile(matcher, config.Keys.Filters.Filename); err != nil {
			mlog.Errorf("startup: load filters file: %v", err)
			cancel()
			os.Exit(1)
		}
	}

	store, err := auxdb.Open(auxdb.Config{
		Driver: driverForDSN(config.Keys.AuxiliaryData.ConnectionString),
		DSN:    config.Keys.AuxiliaryData.ConnectionString,
		Rewind: true,
	}, matcher)
	if err != nil {
		mlog.Errorf("startup: open auxiliary database: %v", err)
		cancel()
		os.Exit(1)
	}

	reporterClient := httpx.New(xrpcBase(config.Keys.AutoReporter.Host, config.Keys.AutoReporter.Port))
	reporterSession := session.New(reporterClient, session.Credentials{
		Identifier: config.Keys.AutoReporter.Handle,
		Password:   config.Keys.AutoReporter.Password,
	})
	if err := reporterSession.Connect(ctx); err != nil {
		mlog.Errorf("startup: connect report-agent session: %v", err)
		cancel()
		os.Exit(1)
	}
	agent := reportagent.New(reporterClient, reporterSession, store, reportagent.Config{
		Did:        config.Keys.AutoReporter.Did,
		ServiceDid: config.Keys.AutoReporter.ServiceDid,
		DryRun:     config.Keys.AutoReporter.DryRun,
	})

	listClient := httpx.New(xrpcBase(config.Keys.ListManager.Host, config.Keys.ListManager.Port))
	listSession := session.New(listClient, session.Credentials{
		Identifier: config.Keys.ListManager.Handle,
		Password:   config.Keys.ListManager.Password,
	})
	if err := listSession.Connect(ctx); err != nil {
		mlog.Errorf("startup: connect list-manager session: %v", err)
		cancel()
		os.Exit(1)
	}
	lists := listmanager.New(listClient, config.Keys.ListManager.ClientDid, config.Keys.ListManager.DryRun, agent)
	if err := lists.LazyLoadManagedLists(ctx); err != nil {
		mlog.Errorf("startup: lazy-load managed lists: %v", err)
		cancel()
		os.Exit(1)
	}

	router := actionrouter.New(agent, matcher, lists, agent)

	metrics := telemetry.New()

	embedReporter := dispatch.NewEmbedReporter(matcher, router, agent, metrics.RedirectLimitExceeded)
	embedChecker := embed.New(embed.Config{
		FollowLinks:     config.Keys.EmbedChecker.FollowLinks,
		NumberOfThreads: config.Keys.EmbedChecker.NumberOfThreads,
	}, embedReporter, store, nil)

	eventCache := activity.NewEventCache(activity.MaxAccounts, activity.MaxContentItems,
		activity.DefaultFactors(), activity.DefaultFacetThresholds(), activity.NoopSink())
	rec := recorder.New(eventCache, recorder.DefaultCapacity)

	disp := dispatch.New(rec, matcher, embedChecker, router)

	subscribeURL := fmt.Sprintf("wss://%s:%d%s", config.Keys.Datasource.Hosts, config.Keys.Datasource.Port, config.Keys.Datasource.Subscription)
	ingestClient, err := ingest.New(ingest.Config{Endpoint: subscribeURL, Compress: true}, store, disp)
	if err != nil {
		mlog.Errorf("startup: build ingest client: %v", err)
		cancel()
		os.Exit(1)
	}

	if err := runtimeEnv.DropPrivileges(config.Keys.User, config.Keys.Group); err != nil {
		mlog.Errorf("startup: drop privileges: %v", err)
		cancel()
		os.Exit(1)
	}

	metrics.Track("embed", embedChecker)
	metrics.Track("action", router)
	metrics.Track("listmanager", lists)
	metrics.Track("recorder", rec)

	var wg sync.WaitGroup
	// Order matters: background consumers before the ingest loop that
	// feeds them, so nothing is dropped waiting for a goroutine to
	// schedule.
	runInBackground(&wg, func() { store.Run(ctx) })
	runInBackground(&wg, func() { rec.Run(ctx) })
	runInBackground(&wg, func() { embedChecker.Run(ctx) })
	runInBackground(&wg, func() { router.Run(ctx, nil) })
	runInBackground(&wg, func() { lists.Run(ctx) })
	runInBackground(&wg, func() { agent.Start(ctx) })
	runInBackground(&wg, func() { metrics.Run(ctx, 15*time.Second) })
	runInBackground(&wg, func() {
		if err := metrics.Serve(ctx, fmt.Sprintf(":%d", config.Keys.Metrics.Port)); err != nil {
			mlog.Errorf("telemetry: serve: %v", err)
		}
	})
	runInBackground(&wg, func() { checkRefreshLoop(ctx, reporterSession, listSession) })
	runInBackground(&wg, func() { ingestClient.Run(ctx) })

	runtimeEnv.SystemdNotifiy(true, "running")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	runtimeEnv.SystemdNotifiy(false, "shutting down")
	cancel()
	wg.Wait()
	store.Close()
	mlog.Infof("modguard: gracefull shutdown completed!")
}

func runInBackground(wg *sync.WaitGroup, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn()
	}()
}

// xrpcBase builds the base URL internal/httpx.Client expects from a
// configured host/port pair.
func xrpcBase(host string, port int) string {
	if port == 0 || port == 443 {
		return fmt.Sprintf("https://%s/xrpc/", host)
	}
	return fmt.Sprintf("https://%s:%d/xrpc/", host, port)
}

// driverForDSN distinguishes a postgres connection string (libpq
// key=value or postgres:// form) from a plain sqlite file path, since
// auxiliary_data.connection_string carries either per spec.md section 6.
func driverForDSN(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// loadRulesFromFile is the filters.use_db=false path: match rules live
// in a flat file of pipe-delimited lines instead of match_filters, and
// are loaded once at startup with no periodic refresh.
func loadRulesFromFile(matcher *rules.Matcher, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var parsed []rules.Rule
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r, err := rules.ParseRule(line)
		if err != nil {
			return fmt.Errorf("parse rule %q: %w", line, err)
		}
		parsed = append(parsed, r)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	matcher.Refresh(rules.BuildState(parsed))
	mlog.Infof("modguard: loaded %d filter rules from %s", len(parsed), path)
	return nil
}

// checkRefreshLoop keeps both outbound sessions' access tokens current,
// interleaved the way the original implementation's single worker loop
// checked its session before every dispatch cycle.
func checkRefreshLoop(ctx context.Context, sessions ...*session.Session) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range sessions {
				if err := s.CheckRefresh(ctx); err != nil {
					mlog.Warnf("session: refresh failed: %v", err)
				}
			}
		}
	}
}
