/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Client is the server side of one connection. Rooms write to send without
// blocking; a client that falls behind is cut off.
type Client struct {
	id   string
	send chan any

	mu     sync.Mutex
	closed bool
}

func newClient(buffer int) *Client {
	return &Client{
		id:   uuid.NewString(),
		send: make(chan any, buffer),
	}
}

// deliver queues msg and reports whether the client is still reachable.
func (c *Client) deliver(msg any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		c.closed = true
		close(c.send)
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Session ties one client to the room it plays in (and optionally one it
// watches). Messages are handled in the order the connection delivers them.
type Session struct {
	client   *Client
	registry *Registry
	limiter  *rate.Limiter
	logger   *slog.Logger

	room     *Room
	watching *Room
}

func newSession(client *Client, registry *Registry, limiter *rate.Limiter, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		client:   client,
		registry: registry,
		limiter:  limiter,
		logger:   logger.With("conn", client.id),
	}
}

// Handle processes one inbound message. Failures are reported to this client
// only; buzz races are dropped silently.
func (s *Session) Handle(ctx context.Context, msg ClientMessage) {
	if s.limiter != nil && !s.limiter.Allow() {
		s.logger.Debug("rate limited", "type", msg.Type)
		return
	}

	err := s.dispatch(ctx, msg)
	if err == nil {
		return
	}

	if msg.Type == "buzz" && errors.Is(err, ErrConflict) {
		return
	}

	s.logger.Debug("request rejected", "type", msg.Type, "error", err)
	s.client.deliver(errorMessage(err))
}

func (s *Session) dispatch(ctx context.Context, msg ClientMessage) error {
	switch msg.Type {
	case "create-room":
		return s.createRoom(msg)
	case "join-room":
		return s.joinRoom(msg)
	case "leave-room":
		return s.leaveRoom(msg)
	case "watch-room":
		return s.watchRoom(msg)
	case "start-game":
		room, err := s.currentRoom(msg.GameCode)
		if err != nil {
			return err
		}
		return room.Start(ctx, s.client.id)
	case "buzz":
		room, err := s.currentRoom(msg.GameCode)
		if err != nil {
			return err
		}
		return room.Buzz(s.client.id)
	case "submit-answer":
		room, err := s.currentRoom(msg.GameCode)
		if err != nil {
			return err
		}
		if msg.Answer == nil {
			return validationf("Missing answer.")
		}
		return room.SubmitAnswer(s.client.id, *msg.Answer)
	default:
		return validationf("Unknown message type %q.", msg.Type)
	}
}

func (s *Session) createRoom(msg ClientMessage) error {
	var settings Settings
	if msg.Settings != nil {
		settings = *msg.Settings
	}

	room, err := s.registry.Create(settings, s.client, msg.PlayerName)
	if err != nil {
		return err
	}

	s.leaveCurrent()
	s.room = room
	room.welcome(s.client)

	return nil
}

func (s *Session) joinRoom(msg ClientMessage) error {
	room, err := s.registry.Get(msg.GameCode)
	if err != nil {
		return err
	}

	if err := room.Join(s.client, msg.PlayerName); err != nil {
		return err
	}

	if s.room != room {
		s.leaveCurrent()
	}
	if s.watching == room {
		s.watching = nil
	}
	s.room = room

	return nil
}

func (s *Session) leaveRoom(msg ClientMessage) error {
	if s.watching != nil && (msg.GameCode == "" || sameCode(msg.GameCode, s.watching.code)) {
		s.watching.Leave(s.client.id)
		s.watching = nil
	}

	if s.room == nil {
		return nil
	}
	if msg.GameCode != "" && !sameCode(msg.GameCode, s.room.code) {
		return nil
	}

	s.leaveCurrent()
	return nil
}

func (s *Session) watchRoom(msg ClientMessage) error {
	room, err := s.registry.Get(msg.GameCode)
	if err != nil {
		return err
	}
	if room == s.room {
		return conflictf("You are already in this room.")
	}

	if err := room.Watch(s.client); err != nil {
		return err
	}

	if s.watching != nil && s.watching != room {
		s.watching.Leave(s.client.id)
	}
	s.watching = room

	return nil
}

// currentRoom returns the room this session plays in, checking the code the
// client addressed when one was given.
func (s *Session) currentRoom(code string) (*Room, error) {
	if s.room == nil {
		return nil, validationf("You are not in a room.")
	}
	if code != "" && !sameCode(code, s.room.code) {
		return nil, validationf("You are not in that room.")
	}
	return s.room, nil
}

func (s *Session) leaveCurrent() {
	if s.room != nil {
		s.room.Leave(s.client.id)
		s.room = nil
	}
}

// Disconnect treats a dropped connection as leaving every room.
func (s *Session) Disconnect() {
	s.leaveCurrent()
	if s.watching != nil {
		s.watching.Leave(s.client.id)
		s.watching = nil
	}
	s.client.close()
}

func sameCode(a, b string) bool {
	norm, err := normalizeCode(a)
	return err == nil && norm == b
}
