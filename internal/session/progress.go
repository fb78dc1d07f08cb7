package session

import (
	"context"
	"sync"
	"time"

	"netwalk/internal/arpscan"
)

// heartbeatInterval is the maximum time between progress reports even
// when the percentage hasn't moved, per spec.md §4.7 ("debounced ...
// with a 30s heartbeat even if unchanged").
const heartbeatInterval = 30 * time.Second

// gracePeriod is the idle window after deep-scanning finishes during
// which the final 95->100% ramp runs, per spec.md §4.7.
const gracePeriod = 30 * time.Second

// ProgressUpdate is one report of a session's state and overall
// percentage (0-100).
type ProgressUpdate struct {
	State   State
	Percent int
}

// ProgressReporter receives progress updates. Implemented by the daemon
// runtime, which forwards them to the server over whichever transport
// mode is active.
type ProgressReporter interface {
	ReportProgress(ctx context.Context, update ProgressUpdate)
}

// progressTracker debounces ProgressUpdate delivery: only on a changed
// percentage, a 30s-stale heartbeat, or the terminal 100%, matching
// spec.md §4.7's reporting rule exactly ("only on change ... heartbeat
// even if unchanged ... final 100 is always reported").
type progressTracker struct {
	mu           sync.Mutex
	reporter     ProgressReporter
	lastPercent  int
	lastReportAt time.Time
	reported100  bool
}

func newProgressTracker(reporter ProgressReporter) *progressTracker {
	return &progressTracker{reporter: reporter, lastPercent: -1}
}

// currentPercent returns the most recently reported percentage, used
// when a terminal state (Cancelled, Failed) needs to report without
// recomputing a phase percentage from scratch.
func (t *progressTracker) currentPercent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastPercent < 0 {
		return 0
	}
	return t.lastPercent
}

func (t *progressTracker) report(ctx context.Context, state State, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	t.mu.Lock()
	changed := percent != t.lastPercent
	stale := time.Since(t.lastReportAt) >= heartbeatInterval
	final := percent == 100 && !t.reported100
	if !changed && !stale && !final {
		t.mu.Unlock()
		return
	}
	t.lastPercent = percent
	t.lastReportAt = time.Now()
	if percent == 100 {
		t.reported100 = true
	}
	t.mu.Unlock()

	if t.reporter != nil {
		t.reporter.ReportProgress(ctx, ProgressUpdate{State: state, Percent: percent})
	}
}

// arpPhaseDuration estimates the ARP sweep's total wall-clock time, per
// spec.md §4.7's formula: "(1+retries) x (targets/rate + round_wait) +
// post_scan_wait", reusing the ARP scanner's own round/post-scan
// windows so the estimate matches what it actually does.
func arpPhaseDuration(targets, retries, ratePPS int) time.Duration {
	if ratePPS <= 0 {
		ratePPS = 1
	}
	perRound := time.Duration(targets)*time.Second/time.Duration(ratePPS) + arpscan.RoundWindow
	return time.Duration(1+retries)*perRound + arpscan.PostScanWindow
}

// arpPhasePercent maps elapsed time in the ARP phase to 0-30%, clamped
// per spec.md §4.7 ("clamped to 1" meaning the ratio never exceeds 1.0
// before scaling).
func arpPhasePercent(elapsed, estimated time.Duration) int {
	if estimated <= 0 {
		return 30
	}
	ratio := float64(elapsed) / float64(estimated)
	if ratio > 1 {
		ratio = 1
	}
	if ratio < 0 {
		ratio = 0
	}
	return int(ratio * 30)
}

// deepScanPercent maps completed/total batches to 30-95%. total of 0
// (no responsive hosts yet) maps to the phase's starting point.
func deepScanPercent(completedBatches, totalBatches int) int {
	if totalBatches <= 0 {
		return 30
	}
	ratio := float64(completedBatches) / float64(totalBatches)
	if ratio > 1 {
		ratio = 1
	}
	return 30 + int(ratio*65)
}

// gracePercent maps elapsed-since-last-activity, against total, to
// 95-100%. total is the Runner's configured grace period (gracePeriod
// by default, shortened in tests so they don't block on a real 30s
// wait).
func gracePercent(elapsedSinceActivity, total time.Duration) int {
	if total <= 0 {
		return 100
	}
	ratio := float64(elapsedSinceActivity) / float64(total)
	if ratio > 1 {
		ratio = 1
	}
	if ratio < 0 {
		ratio = 0
	}
	return 95 + int(ratio*5)
}
