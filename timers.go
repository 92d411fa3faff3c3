/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import "time"

// Timer is a pending callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler creates deferred callbacks.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type timerSlot int

const (
	slotQuestion timerSlot = iota
	slotAnswer
	slotNext
	slotClose
	numSlots
)

func (s timerSlot) String() string {
	switch s {
	case slotQuestion:
		return "question"
	case slotAnswer:
		return "answer"
	case slotNext:
		return "next"
	case slotClose:
		return "close"
	default:
		return "unknown"
	}
}

// roomTimers holds at most one armed timer per slot. Every arm bumps the
// slot token, so a callback that lost a race with stop or re-arm can tell it
// is stale. Callers must hold the owning room's lock.
type roomTimers struct {
	sched  Scheduler
	timers [numSlots]Timer
	tokens [numSlots]uint64
}

func newRoomTimers(sched Scheduler) roomTimers {
	if sched == nil {
		sched = wallClock{}
	}
	return roomTimers{sched: sched}
}

// arm cancels whatever occupies slot and schedules fire. fire receives the
// token it was armed with.
func (t *roomTimers) arm(slot timerSlot, d time.Duration, fire func(token uint64)) {
	t.stop(slot)

	token := t.tokens[slot]
	t.timers[slot] = t.sched.AfterFunc(d, func() { fire(token) })
}

func (t *roomTimers) stop(slot timerSlot) {
	if t.timers[slot] != nil {
		t.timers[slot].Stop()
		t.timers[slot] = nil
	}
	t.tokens[slot]++
}

// claim reports whether token is still the live arming of slot, and
// clears the slot if so.
func (t *roomTimers) claim(slot timerSlot, token uint64) bool {
	if t.timers[slot] == nil || t.tokens[slot] != token {
		return false
	}
	t.timers[slot] = nil
	t.tokens[slot]++
	return true
}

func (t *roomTimers) armed(slot timerSlot) bool {
	return t.timers[slot] != nil
}

func (t *roomTimers) armedCount() int {
	n := 0
	for _, tm := range t.timers {
		if tm != nil {
			n++
		}
	}
	return n
}

func (t *roomTimers) stopAll() {
	for slot := timerSlot(0); slot < numSlots; slot++ {
		t.stop(slot)
	}
}
