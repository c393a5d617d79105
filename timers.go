package xotalk

import (
	"time"

	"github.com/opd-ai/xotalk/executor"
)

type timerSlot int

const (
	slotIdle timerSlot = iota
	slotKeepAlive
	slotConnect
	slotDisconnect
	slotCount
)

var slotNames = [slotCount]string{"idle", "keepalive", "connect", "disconnect"}

func (s timerSlot) String() string {
	return slotNames[s]
}

// timerArena holds one timer per slot. Every arm or cancel bumps the slot's
// generation, so work that was already queued when its timer was replaced
// does nothing. The arena is only used from the executor.
type timerArena struct {
	exec   executor.Executor
	timers [slotCount]executor.Timer
	gens   [slotCount]uint64
	armed  [slotCount]bool
}

func newTimerArena(exec executor.Executor) *timerArena {
	return &timerArena{exec: exec}
}

// arm replaces the timer in slot with one running fn after d.
func (a *timerArena) arm(slot timerSlot, d time.Duration, fn func()) {
	a.cancel(slot)
	gen := a.gens[slot]
	a.armed[slot] = true
	run := func() {
		if a.gens[slot] != gen {
			return
		}
		a.armed[slot] = false
		a.timers[slot] = nil
		fn()
	}
	if d <= 0 {
		a.exec.Execute(run)
		return
	}
	a.timers[slot] = a.exec.Schedule(d, run)
}

func (a *timerArena) cancel(slot timerSlot) {
	if t := a.timers[slot]; t != nil {
		t.Stop()
		a.timers[slot] = nil
	}
	a.armed[slot] = false
	a.gens[slot]++
}

func (a *timerArena) isArmed(slot timerSlot) bool {
	return a.armed[slot]
}

func (a *timerArena) cancelAll() {
	for s := timerSlot(0); s < slotCount; s++ {
		a.cancel(s)
	}
}
