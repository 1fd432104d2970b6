package negotiation

import "time"

// debouncer coalesces bursts of triggers into one tick, fired wait after
// the last trigger but never later than max after the first.
type debouncer struct {
	wait    time.Duration
	max     time.Duration
	timer   *time.Timer
	first   time.Time
	pending bool
}

func newDebouncer(wait, max time.Duration) *debouncer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return &debouncer{wait: wait, max: max, timer: t}
}

func (d *debouncer) trigger() {
	now := time.Now()
	if !d.pending {
		d.pending = true
		d.first = now
	}
	delay := d.wait
	if left := d.first.Add(d.max).Sub(now); left < delay {
		delay = left
	}
	if delay < 0 {
		delay = 0
	}
	d.timer.Reset(delay)
}

// C fires once per burst. The receiver must call fired afterwards.
func (d *debouncer) C() <-chan time.Time {
	return d.timer.C
}

func (d *debouncer) fired() {
	d.pending = false
}

func (d *debouncer) stop() {
	d.timer.Stop()
	d.pending = false
}
