/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"crypto/rand"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	codeAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength     = 6
	maxCodeRetries = 32
)

// Registry holds every live room keyed by code.
type Registry struct {
	ctx      context.Context
	policy   Policy
	provider QuestionProvider
	sched    Scheduler
	logger   *slog.Logger
	newCode  func() (string, error)

	mu    sync.Mutex
	rooms map[string]*Room
}

type RegistryOptions struct {
	Policy    Policy
	Provider  QuestionProvider
	Scheduler Scheduler
	Logger    *slog.Logger
}

func NewRegistry(ctx context.Context, opts RegistryOptions) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	provider := opts.Provider
	if provider == nil {
		provider = NewStaticProvider(nil)
	}

	return &Registry{
		ctx:      ctx,
		policy:   opts.Policy,
		provider: provider,
		sched:    opts.Scheduler,
		logger:   logger,
		newCode:  randomCode,
		rooms:    make(map[string]*Room),
	}
}

// randomCode draws codeLength characters from codeAlphabet via crypto/rand.
// The alphabet has 32 entries, so masking a byte is unbiased.
func randomCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	out := make([]byte, codeLength)
	for i := range out {
		out[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}

	return string(out), nil
}

// normalizeCode upper-cases code and checks it could have been issued.
func normalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != codeLength {
		return "", validationf("Invalid room code.")
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(codeAlphabet, code[i]) < 0 {
			return "", validationf("Invalid room code.")
		}
	}
	return code, nil
}

// Create registers a new room with creator seated in it. Code generation and
// insertion share one critical section, so concurrent creates never collide.
func (reg *Registry) Create(settings Settings, creator *Client, name string) (*Room, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	for range maxCodeRetries {
		code, err := reg.newCode()
		if err != nil {
			return nil, err
		}
		if _, exists := reg.rooms[code]; exists {
			reg.logger.Debug("room code collision, regenerating", "code", code)
			continue
		}

		room := newRoom(reg.ctx, code, settings, roomDeps{
			policy:   reg.policy,
			provider: reg.provider,
			sched:    reg.sched,
			logger:   reg.logger,
			released: reg.forget,
		}, creator, name)
		reg.rooms[code] = room

		reg.logger.Info("room created", "room", code, "creator", name, "rooms", len(reg.rooms))

		return room, nil
	}

	return nil, ErrRegistryFull
}

func (reg *Registry) Get(code string) (*Room, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// forget drops room from the map if it is still the one registered under its
// code. Rooms call it after closing themselves.
func (reg *Registry) forget(room *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.rooms[room.code] == room {
		delete(reg.rooms, room.code)
		reg.logger.Debug("room released", "room", room.code, "rooms", len(reg.rooms))
	}
}

func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return len(reg.rooms)
}

func (reg *Registry) snapshot() []*Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// reap closes rooms idle since before cutoff and returns how many it closed.
func (reg *Registry) reap(cutoff time.Time) int {
	n := 0
	for _, room := range reg.snapshot() {
		if room.idle(cutoff) {
			room.Close("The room was closed after a period of inactivity.")
			n++
		}
	}
	return n
}

// reaperLoop periodically closes rooms that have been idle longer than
// idleTimeout, until ctx is done.
func (reg *Registry) reaperLoop(ctx context.Context, idleTimeout time.Duration) {
	ticker := time.NewTicker(idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := reg.reap(time.Now().Add(-idleTimeout)); n > 0 {
				reg.logger.Info("reaped idle rooms", "closed", n, "rooms", reg.Len())
			}
		}
	}
}

// Shutdown closes every room.
func (reg *Registry) Shutdown(reason string) {
	for _, room := range reg.snapshot() {
		room.Close(reason)
	}
}
