package main

import "time"

const (
	defaultTimerTick   = time.Second
	defaultSubmitGrace = 5 * time.Second
)

type timerState int

const (
	timerIdle timerState = iota
	timerRunning
	timerStopped
	timerExpired
)

// createTimer bounds how long a creator may take to submit. One authoritative
// transition table: Idle -> Running -> Stopped (a prompt arrived) or
// Expired (auto-submit requested, then the round is skipped after a grace
// window if no prompt showed up).
type createTimer struct {
	state    timerState
	total    time.Duration
	deadline time.Time
	cancel   chan struct{}
}

func (r *Room) createTimerTotal() time.Duration {
	if r.timerDuration > 0 {
		return r.timerDuration
	}
	return time.Duration(r.settings.CreateTimerMinutes) * time.Minute
}

// startCreateTimerLocked arms the countdown for the current creator. A room
// with no configured limit never gets a timer.
func (r *Room) startCreateTimerLocked() {
	total := r.createTimerTotal()
	if total <= 0 {
		return
	}

	r.stopCreateTimerLocked(false)

	tick := r.timerTick
	if tick <= 0 {
		tick = defaultTimerTick
	}

	t := &createTimer{
		state:    timerRunning,
		total:    total,
		deadline: time.Now().Add(total),
		cancel:   make(chan struct{}),
	}
	r.timer = t

	go r.runCreateTimer(t, tick)
}

// runCreateTimer broadcasts remaining time once per tick until the timer is
// stopped, superseded, or expires.
func (r *Room) runCreateTimer(t *createTimer, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-t.cancel:
			return
		case <-ticker.C:
		}

		r.mu.Lock()
		if r.closed || r.timer != t || t.state != timerRunning {
			r.mu.Unlock()
			return
		}

		remaining := time.Until(t.deadline)
		if remaining > 0 {
			r.broadcastLocked(newMessage("create-timer-update", createTimerUpdateData{
				RemainingSeconds: int(remaining.Round(time.Second) / time.Second),
				TotalSeconds:     int(t.total / time.Second),
			}))
			r.mu.Unlock()
			continue
		}

		r.expireCreateTimerLocked(t)
		r.mu.Unlock()
		return
	}
}

// expireCreateTimerLocked asks the creator's client to attempt a best-effort
// auto-submit, then skips the round after the grace window if no prompt has
// been stored by then.
func (r *Room) expireCreateTimerLocked(t *createTimer) {
	t.state = timerExpired

	r.broadcastLocked(newMessage("create-timer-update", createTimerUpdateData{
		RemainingSeconds: 0,
		TotalSeconds:     int(t.total / time.Second),
	}))
	if len(r.players) > 0 {
		r.players[r.turnIndex].trySend(newMessage("timer-expired", nil))
	}

	grace := r.submitGrace
	if grace <= 0 {
		grace = defaultSubmitGrace
	}

	time.AfterFunc(grace, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed || r.timer != t || r.prompt != nil || len(r.players) == 0 {
			return
		}
		r.skipRoundLocked()
	})
}

// stopCreateTimerLocked halts a running timer, optionally telling clients so
// they can hide their countdowns. An expired timer is retired instead: a
// prompt can still land inside the grace window, and the pending skip must
// see it was superseded. Stopping an idle or already-stopped timer is a
// no-op.
func (r *Room) stopCreateTimerLocked(announce bool) {
	t := r.timer
	if t == nil {
		return
	}

	if t.state == timerExpired {
		r.timer = nil
		return
	}

	if t.state != timerRunning {
		return
	}

	t.state = timerStopped
	close(t.cancel)

	if announce {
		r.broadcastLocked(newMessage("create-timer-stopped", nil))
	}
}
