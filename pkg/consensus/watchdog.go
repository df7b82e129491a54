// file: pkg/consensus/watchdog.go
package consensus

import (
	"context"
	"time"

	"github.com/praxis-chain/rpubft/pkg/util"
)

// Watchdog is the censorship checker: it sleeps up to Timeout, restarting
// the sleep every time a block commits, and when it actually wakes up on
// the timeout (rather than being restarted) it checks whether any pending
// transaction has been waiting longer than Timeout. If so, the leader is
// presumed to be censoring and a view-change is requested. The restart
// mechanism reuses the same closed-and-replace broadcast channel pattern as
// awaitBlockReady.
type Watchdog struct {
	f       *Follower
	Timeout time.Duration
	Clock   util.Clock
}

func NewWatchdog(f *Follower, timeout time.Duration, clock util.Clock) *Watchdog {
	return &Watchdog{f: f, Timeout: timeout, Clock: clock}
}

// Run blocks until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	for {
		f := w.f
		f.mu.Lock()
		ch := f.commitCh
		term := f.leaderTerm
		f.mu.Unlock()

		deadline := w.Clock.After(w.Timeout)
		select {
		case <-ctx.Done():
			return
		case <-ch:
			// a block committed before the timer fired; restart the wait
			continue
		case <-deadline:
		}

		if !f.queue.HasOlderThan(w.Timeout) {
			continue
		}

		f.logErr("censorship_suspected", "leader_term", term, "oldest_pending", f.queue.OldestAge())
		f.mu.Lock()
		f.requestViewChangeAndUnlock(ctx)
	}
}
