/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// manualTimer never fires on its own; tests fire it through the room.
type manualTimer struct {
	mu      sync.Mutex
	d       time.Duration
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	was := !t.stopped
	t.stopped = true
	return was
}

// run invokes the callback even if the timer was stopped, the way a
// time.AfterFunc callback can still run after losing a race with Stop.
func (t *manualTimer) run() {
	t.f()
}

type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &manualTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

type scriptedProvider struct {
	mu        sync.Mutex
	questions []Question
	err       error
	calls     int
	gate      chan struct{}
}

func (p *scriptedProvider) FetchQuestions(ctx context.Context, count int) ([]Question, error) {
	p.mu.Lock()
	p.calls++
	gate := p.gate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if p.err != nil {
		return nil, p.err
	}

	out := make([]Question, count)
	for i := range out {
		out[i] = p.questions[i%len(p.questions)]
	}
	return out, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.calls
}

var (
	capitalQuestion = Question{
		Text:    "What is the capital of Canada?",
		Options: []string{"Ottawa", "Toronto", "Montreal", "Vancouver"},
		Answer:  "Ottawa",
	}
	planetQuestion = Question{
		Text:    "Which planet is known as the Red Planet?",
		Options: []string{"Venus", "Mars", "Jupiter", "Mercury"},
		Answer:  "Mars",
	}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	t        *testing.T
	sched    *manualScheduler
	provider *scriptedProvider
	reg      *Registry
}

func newHarness(t *testing.T, policy Policy) *harness {
	t.Helper()

	h := &harness{
		t:        t,
		sched:    &manualScheduler{},
		provider: &scriptedProvider{questions: []Question{capitalQuestion, planetQuestion}},
	}
	h.reg = NewRegistry(context.Background(), RegistryOptions{
		Policy:    policy,
		Provider:  h.provider,
		Scheduler: h.sched,
		Logger:    discardLogger(),
	})

	return h
}

// room creates a room owned by a fresh client and seats one more player per
// extra name.
func (h *harness) room(settings Settings, creator string, others ...string) (*Room, []*Client) {
	h.t.Helper()

	owner := newClient(256)
	room, err := h.reg.Create(settings, owner, creator)
	require.NoError(h.t, err)
	room.welcome(owner)

	clients := []*Client{owner}
	for _, name := range others {
		c := newClient(256)
		require.NoError(h.t, room.Join(c, name))
		clients = append(clients, c)
	}

	return room, clients
}

// fire runs whatever timer the room has armed in slot.
func (h *harness) fire(r *Room, slot timerSlot) {
	h.t.Helper()

	r.mu.Lock()
	tm, ok := r.timers.timers[slot].(*manualTimer)
	r.mu.Unlock()

	require.Truef(h.t, ok, "no %s timer armed", slot)
	tm.run()
}

func armedTimer(t *testing.T, r *Room, slot timerSlot) *manualTimer {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()

	tm, ok := r.timers.timers[slot].(*manualTimer)
	require.Truef(t, ok, "no %s timer armed", slot)
	return tm
}

// drain empties c's queue without blocking.
func drain(c *Client) []any {
	var out []any
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func ofType[T any](msgs []any) []T {
	var out []T
	for _, m := range msgs {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func lastOf[T any](t *testing.T, msgs []any) T {
	t.Helper()

	all := ofType[T](msgs)
	require.NotEmpty(t, all)
	return all[len(all)-1]
}
