package scheduler

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/h1v3-io/relay/internal/audit"
	"github.com/h1v3-io/relay/internal/session"
	"github.com/h1v3-io/relay/pkg/protocol"
)

func TestAddJob(t *testing.T) {
	var calls atomic.Int32

	sched := New(nil)
	err := sched.AddJob("sweep", "@every 1s", func() { calls.Add(1) })
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	if sched.JobCount() != 1 {
		t.Errorf("JobCount = %d", sched.JobCount())
	}

	// Start cron and wait for it to fire
	sched.cron.Start()
	time.Sleep(1500 * time.Millisecond)
	sched.cron.Stop()

	if calls.Load() == 0 {
		t.Error("expected at least one call")
	}
}

func TestInvalidSchedule(t *testing.T) {
	sched := New(nil)
	err := sched.AddJob("sweep", "invalid-cron", func() {})
	if err == nil {
		t.Error("expected error for invalid schedule")
	}
	if sched.JobCount() != 0 {
		t.Errorf("JobCount = %d after failed add", sched.JobCount())
	}
}

func TestAddJob_ReplacesByName(t *testing.T) {
	sched := New(nil)
	sched.AddJob("stats", "@every 1h", func() {})
	sched.AddJob("stats", "@every 2h", func() {})

	jobs := sched.ListJobs()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if jobs[0].Schedule != "@every 2h" {
		t.Errorf("schedule = %q", jobs[0].Schedule)
	}
	if len(sched.cron.Entries()) != 1 {
		t.Errorf("cron entries = %d", len(sched.cron.Entries()))
	}
}

func TestRemoveJob(t *testing.T) {
	sched := New(nil)
	sched.AddJob("a", "@every 1h", func() {})
	sched.AddJob("b", "@every 2h", func() {})

	sched.RemoveJob("a")
	sched.RemoveJob("missing")

	jobs := sched.ListJobs()
	if len(jobs) != 1 || jobs[0].Name != "b" {
		t.Errorf("jobs = %+v", jobs)
	}
}

func TestListJobs_Sorted(t *testing.T) {
	sched := New(nil)
	sched.AddJob("zeta", "@every 1h", func() {})
	sched.AddJob("alpha", "*/5 * * * *", func() {})

	jobs := sched.ListJobs()
	if len(jobs) != 2 || jobs[0].Name != "alpha" || jobs[1].Name != "zeta" {
		t.Errorf("jobs = %+v", jobs)
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	sched := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Start(ctx) }()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestPanickingJobRecovered(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	var after atomic.Int32

	sched := New(logger)
	sched.AddJob("boom", "@every 1s", func() { panic("kaboom") })
	sched.AddJob("fine", "@every 1s", func() { after.Add(1) })

	sched.cron.Start()
	time.Sleep(1500 * time.Millisecond)
	<-sched.cron.Stop().Done()

	if after.Load() == 0 {
		t.Error("healthy job did not run")
	}
	if !strings.Contains(buf.String(), "panic") {
		t.Errorf("expected panic to be logged, got %q", buf.String())
	}
}

type fakeSweeper struct {
	mu      sync.Mutex
	expired []protocol.ReplyIntent
	live    []protocol.ReplyIntent
}

func (f *fakeSweeper) Sweep() []protocol.ReplyIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.expired
	f.expired = nil
	return out
}

func (f *fakeSweeper) Snapshot() []protocol.ReplyIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

type memJournal struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (j *memJournal) Record(_ context.Context, e audit.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func (j *memJournal) List(context.Context, audit.Filter) ([]audit.Entry, error) {
	return nil, nil
}

func TestSweepJob(t *testing.T) {
	sweeper := &fakeSweeper{expired: []protocol.ReplyIntent{
		{BotKey: "botA", TargetUserID: "1"},
		{BotKey: "botB", TargetUserID: "2"},
	}}
	journal := &memJournal{}

	job := SweepJob(sweeper, journal, nil)
	job()
	job() // nothing left to sweep

	if len(journal.entries) != 2 {
		t.Fatalf("expected 2 journal entries, got %d", len(journal.entries))
	}
	for _, e := range journal.entries {
		if e.Kind != audit.KindReplyExpired {
			t.Errorf("kind = %q", e.Kind)
		}
	}
	if journal.entries[1].BotKey != "botB" || journal.entries[1].UserID != "2" {
		t.Errorf("entry = %+v", journal.entries[1])
	}
}

func TestSweepJob_NoJournal(t *testing.T) {
	sweeper := &fakeSweeper{expired: []protocol.ReplyIntent{{BotKey: "botA", TargetUserID: "1"}}}
	SweepJob(sweeper, nil, nil)()
	if len(sweeper.expired) != 0 {
		t.Error("sweep did not run")
	}
}

func TestStatsJob(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	dir := session.NewDirectory()
	dir.GetOrCreate("botA", "1")
	dir.GetOrCreate("botA", "2")
	dir.GetOrCreate("botB", "1")
	dir.Close("botA", "2")

	sweeper := &fakeSweeper{live: []protocol.ReplyIntent{{BotKey: "botA", TargetUserID: "1"}}}
	StatsJob(dir, sweeper, logger)()

	out := buf.String()
	for _, want := range []string{"open_tickets=2", "closed_tickets=1", "armed_bots=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}
