package page

import "time"

type timer struct {
	id         int
	timeout    time.Duration
	singleShot bool
	fn         func()
	t          *time.Timer
}

// SetTimer schedules fn after timeout and returns the timer id. A timer that
// is not single-shot repeats until cleared.
func (p *Page) SetTimer(fn func(), timeout time.Duration, singleShot bool) int {
	p.nextTimer++
	id := p.nextTimer
	timeout = elapsed(timeout)

	k := p.ins.WillInstallTimer(id, timeout, singleShot)
	tm := &timer{id: id, timeout: timeout, singleShot: singleShot, fn: fn}
	p.timers[id] = tm
	p.arm(tm)
	p.ins.DidInstallTimer(k, id, timeout, singleShot)
	return id
}

func (p *Page) arm(tm *timer) {
	tm.t = p.loop.AfterFunc(tm.timeout, func() { p.FireTimer(tm.id) })
}

// FireTimer runs the timer now. Unknown or cleared timers are ignored.
func (p *Page) FireTimer(id int) {
	tm, ok := p.timers[id]
	if !ok {
		return
	}
	tm.t.Stop()
	if tm.singleShot {
		delete(p.timers, id)
	}

	k := p.ins.WillFireTimer(id)
	tm.fn()
	p.ins.DidFireTimer(k)
	p.Render()

	if !tm.singleShot {
		if _, live := p.timers[id]; live {
			p.arm(tm)
		}
	}
}

// ClearTimer cancels a timer. It reports whether the timer was pending.
func (p *Page) ClearTimer(id int) bool {
	tm, ok := p.timers[id]
	if !ok {
		return false
	}
	tm.t.Stop()
	delete(p.timers, id)
	p.ins.DidRemoveTimer(id)
	return true
}

// PendingTimers returns the number of live timers.
func (p *Page) PendingTimers() int { return len(p.timers) }

func (p *Page) stopTimers() {
	for id, tm := range p.timers {
		tm.t.Stop()
		delete(p.timers, id)
	}
}

// elapsed clamps a timer duration to zero.
func elapsed(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
