/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	maxNameLength = 24
	fetchTimeout  = 15 * time.Second
)

type RoomState string

const (
	StateWaiting  RoomState = "waiting"
	StatePlaying  RoomState = "playing"
	StateFinished RoomState = "finished"
)

type roundPhase int

const (
	phaseIdle roundPhase = iota
	phaseBuzz
	phaseAnswer
	phaseResult
)

// Settings are chosen by the room creator and fixed for the room's lifetime.
type Settings struct {
	MaxPlayers    int `json:"maxPlayers"`
	QuestionCount int `json:"questionsCount"`
	BuzzerSeconds int `json:"buzzerSeconds"`
	AnswerSeconds int `json:"answerSeconds"`
	PointsCorrect int `json:"pointsCorrect"`
	PointsWrong   int `json:"pointsWrong"`
}

func clampInt(v, lo, hi, fallback int) int {
	if v == 0 {
		return fallback
	}
	return min(hi, max(lo, v))
}

// normalize clamps every field into its allowed range; zero means default.
func (s Settings) normalize() Settings {
	return Settings{
		MaxPlayers:    clampInt(s.MaxPlayers, 2, 4, 2),
		QuestionCount: clampInt(s.QuestionCount, 1, 50, 10),
		BuzzerSeconds: clampInt(s.BuzzerSeconds, 5, 90, 30),
		AnswerSeconds: clampInt(s.AnswerSeconds, 5, 60, 15),
		PointsCorrect: clampInt(s.PointsCorrect, 1, 50, 5),
		PointsWrong:   clampInt(s.PointsWrong, -50, -1, -5),
	}
}

type StartMode string

const (
	StartAnyone  StartMode = "anyone"
	StartCreator StartMode = "creator"
)

// Policy holds the server-wide game rules that are not up to the creator.
type Policy struct {
	StartMode      StartMode
	AutoStart      bool
	FloorScores    bool
	NextRoundDelay time.Duration
	FinishedGrace  time.Duration
}

func defaultPolicy() Policy {
	return Policy{
		StartMode:      StartAnyone,
		NextRoundDelay: 2500 * time.Millisecond,
		FinishedGrace:  5 * time.Minute,
	}
}

type Player struct {
	ID     string
	Name   string
	Score  int
	client *Client
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", validationf("Invalid name.")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		name = strings.TrimSpace(string([]rune(name)[:maxNameLength]))
	}
	return name, nil
}

// Room is one game. Every field below mu is guarded by it; timer callbacks
// take mu and re-check the round before acting.
type Room struct {
	code     string
	settings Settings
	policy   Policy
	provider QuestionProvider
	logger   *slog.Logger
	released func(*Room)

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      RoomState
	starting   bool
	closed     bool
	creatorID  string
	players    []*Player
	watchers   map[string]*Client
	questions  []Question
	index      int
	round      uint64
	phase      roundPhase
	buzzWinner string
	awaiting   string
	timers     roomTimers
	createdAt  time.Time
	lastActive time.Time
}

type roomDeps struct {
	policy   Policy
	provider QuestionProvider
	sched    Scheduler
	logger   *slog.Logger
	released func(*Room)
}

// newRoom builds a waiting room with the creator already seated. The room is
// not shared yet, so no locking is needed here.
func newRoom(parent context.Context, code string, settings Settings, deps roomDeps, creator *Client, creatorName string) *Room {
	ctx, cancel := context.WithCancel(parent)
	now := time.Now()

	logger := deps.logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Room{
		code:       code,
		settings:   settings.normalize(),
		policy:     deps.policy,
		provider:   deps.provider,
		logger:     logger.With("room", code),
		released:   deps.released,
		ctx:        ctx,
		cancel:     cancel,
		state:      StateWaiting,
		creatorID:  creator.id,
		watchers:   make(map[string]*Client),
		timers:     newRoomTimers(deps.sched),
		createdAt:  now,
		lastActive: now,
	}

	r.players = append(r.players, &Player{ID: creator.id, Name: creatorName, client: creator})

	return r
}

func (r *Room) Code() string { return r.code }

func (r *Room) Settings() Settings { return r.settings }

// welcome greets the creator once the room is registered.
func (r *Room) welcome(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c.deliver(RoomCreatedMessage{
		Type:     "room-created",
		GameCode: r.code,
		PlayerID: c.id,
		Settings: r.settings,
	})
	r.broadcastRoomUpdateLocked()
}

func (r *Room) touchLocked() {
	r.lastActive = time.Now()
}

func (r *Room) playerLocked(id string) *Player {
	for _, p := range r.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// scoreboardLocked sorts by score, descending; ties keep join order.
func (r *Room) scoreboardLocked() []PlayerView {
	views := make([]PlayerView, len(r.players))
	for i, p := range r.players {
		views[i] = PlayerView{ID: p.ID, Name: p.Name, Score: p.Score}
	}

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Score > views[j].Score
	})

	return views
}

func (r *Room) broadcastLocked(msg any) {
	for _, p := range r.players {
		p.client.deliver(msg)
	}
	for id, c := range r.watchers {
		if !c.deliver(msg) {
			delete(r.watchers, id)
		}
	}
}

func (r *Room) sendLocked(id string, msg any) {
	if p := r.playerLocked(id); p != nil {
		p.client.deliver(msg)
	}
}

func (r *Room) broadcastRoomUpdateLocked() {
	r.broadcastLocked(RoomUpdateMessage{
		Type:     "room-update",
		GameCode: r.code,
		State:    r.state,
		Settings: r.settings,
		Players:  r.scoreboardLocked(),
	})
}

// Join seats c in a waiting room.
func (r *Room) Join(c *Client, name string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.closed:
		return ErrRoomNotFound
	case r.state != StateWaiting || r.starting:
		return validationf("Game already started.")
	case r.playerLocked(c.id) != nil:
		return conflictf("You are already in this room.")
	case len(r.players) >= r.settings.MaxPlayers:
		return validationf("Room is full.")
	}

	r.touchLocked()
	delete(r.watchers, c.id)
	r.players = append(r.players, &Player{ID: c.id, Name: name, client: c})

	r.logger.Info("player joined", "player", name, "players", len(r.players))

	c.deliver(RoomCreatedMessage{
		Type:     "room-joined",
		GameCode: r.code,
		PlayerID: c.id,
		Settings: r.settings,
	})
	r.broadcastRoomUpdateLocked()

	if r.policy.AutoStart && len(r.players) == r.settings.MaxPlayers {
		go r.autoStart(r.creatorID)
	}

	return nil
}

func (r *Room) autoStart(requester string) {
	if err := r.Start(r.ctx, requester); err != nil && !errors.Is(err, ErrConflict) {
		r.logger.Warn("auto start failed", "error", err)

		r.mu.Lock()
		r.sendLocked(requester, errorMessage(err))
		r.mu.Unlock()
	}
}

// Watch subscribes c to room broadcasts without a seat.
func (r *Room) Watch(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomNotFound
	}
	if r.playerLocked(c.id) != nil {
		return conflictf("You are already in this room.")
	}

	r.touchLocked()
	r.watchers[c.id] = c

	c.deliver(RoomUpdateMessage{
		Type:     "room-update",
		GameCode: r.code,
		State:    r.state,
		Settings: r.settings,
		Players:  r.scoreboardLocked(),
	})

	return nil
}

// Leave removes id from the room. A departing answerer resolves the round as
// unanswered. The last player out closes the room.
func (r *Room) Leave(id string) {
	r.mu.Lock()

	delete(r.watchers, id)

	i := slices.IndexFunc(r.players, func(p *Player) bool { return p.ID == id })
	if i < 0 || r.closed {
		r.mu.Unlock()
		return
	}

	r.touchLocked()
	p := r.players[i]
	r.players = slices.Delete(r.players, i, i+1)

	r.logger.Info("player left", "player", p.Name, "players", len(r.players))

	if r.state == StatePlaying && r.phase == phaseAnswer && r.awaiting == id {
		r.awaiting = ""
		r.timers.stop(slotAnswer)
		r.resolveLocked(nil, nil, false)
	}

	if r.creatorID == id && len(r.players) > 0 {
		r.creatorID = r.players[0].ID
	}

	if len(r.players) == 0 {
		r.closeLocked("")
		r.mu.Unlock()
		r.release()
		return
	}

	r.broadcastRoomUpdateLocked()
	r.mu.Unlock()
}

func (r *Room) canStartLocked(requester string) error {
	switch {
	case r.closed:
		return ErrRoomNotFound
	case r.state != StateWaiting:
		return conflictf("Game already started.")
	case r.starting:
		return conflictf("Game is already starting.")
	case r.playerLocked(requester) == nil:
		return validationf("You are not in this room.")
	case r.policy.StartMode == StartCreator && requester != r.creatorID:
		return validationf("Only the room creator can start the game.")
	case len(r.players) < 2:
		return validationf("At least 2 players are needed to start.")
	}
	return nil
}

// Start moves a waiting room into play. The question fetch runs without the
// lock; the starting flag keeps a concurrent Start from fetching twice.
func (r *Room) Start(ctx context.Context, requester string) error {
	r.mu.Lock()
	if err := r.canStartLocked(requester); err != nil {
		r.mu.Unlock()
		return err
	}
	r.starting = true
	count := r.settings.QuestionCount
	r.touchLocked()
	r.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	questions, err := r.provider.FetchQuestions(fetchCtx, count)
	cancel()

	if err == nil && len(questions) != count {
		err = fmt.Errorf("%w: got %d questions, want %d", ErrProvider, len(questions), count)
	}
	if err != nil && !errors.Is(err, ErrProvider) {
		err = fmt.Errorf("%w: %w", ErrProvider, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.starting = false

	if err != nil {
		r.logger.Warn("question fetch failed", "error", err)
		return err
	}

	switch {
	case r.closed:
		return ErrRoomNotFound
	case len(r.players) < 2:
		return validationf("At least 2 players are needed to start.")
	}

	r.state = StatePlaying
	r.questions = questions
	r.index = 0
	for _, p := range r.players {
		p.Score = 0
	}

	r.logger.Info("game started", "players", len(r.players), "questions", len(questions))

	r.broadcastLocked(GameStartedMessage{
		Type:           "game-started",
		GameCode:       r.code,
		TotalQuestions: len(r.questions),
	})
	r.broadcastRoomUpdateLocked()
	r.startRoundLocked()

	return nil
}

func (r *Room) startRoundLocked() {
	r.round++
	r.phase = phaseBuzz
	r.buzzWinner = ""
	r.awaiting = ""

	q := r.questions[r.index]

	r.broadcastLocked(QuestionMessage{
		Type:                "question",
		GameCode:            r.code,
		QuestionNumber:      r.index + 1,
		TotalQuestions:      len(r.questions),
		Question:            q.Text,
		ImageURL:            q.ImageURL,
		IllustrationCaption: q.IllustrationCaption,
		BuzzerSeconds:       r.settings.BuzzerSeconds,
	})

	round := r.round
	r.timers.arm(slotQuestion, seconds(r.settings.BuzzerSeconds), func(token uint64) {
		r.onQuestionTimeout(round, token)
	})
}

// Buzz claims the current question for id. Only the first buzz of a round
// is accepted.
func (r *Room) Buzz(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomNotFound
	}
	if r.state != StatePlaying {
		return conflictf("No question is open.")
	}

	p := r.playerLocked(id)
	if p == nil {
		return validationf("You are not in this room.")
	}
	if r.phase != phaseBuzz {
		return conflictf("Someone already buzzed.")
	}

	r.touchLocked()
	r.timers.stop(slotQuestion)
	r.buzzWinner = id
	r.awaiting = id
	r.phase = phaseAnswer

	r.logger.Debug("buzz accepted", "player", p.Name, "question", r.index+1)

	r.broadcastLocked(BuzzWinnerMessage{
		Type:     "buzz-winner",
		GameCode: r.code,
		Winner:   PlayerRef{ID: p.ID, Name: p.Name},
	})

	p.client.deliver(AnswerOptionsMessage{
		Type:          "answer-options",
		GameCode:      r.code,
		Options:       slices.Clone(r.questions[r.index].Options),
		AnswerSeconds: r.settings.AnswerSeconds,
	})

	round := r.round
	r.timers.arm(slotAnswer, seconds(r.settings.AnswerSeconds), func(token uint64) {
		r.onAnswerTimeout(round, token)
	})

	return nil
}

// SubmitAnswer resolves the round for the buzz winner.
func (r *Room) SubmitAnswer(id, answer string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomNotFound
	}
	if r.state != StatePlaying || r.phase != phaseAnswer || r.awaiting == "" {
		return conflictf("No answer is expected right now.")
	}
	if r.awaiting != id {
		return conflictf("Only the player who buzzed may answer.")
	}

	r.touchLocked()
	r.timers.stop(slotAnswer)
	r.awaiting = ""

	p := r.playerLocked(id)
	correct := answer == r.questions[r.index].Answer
	r.applyScoreLocked(p, correct)

	r.logger.Debug("answer received", "player", p.Name, "question", r.index+1, "correct", correct)

	r.resolveLocked(p, &answer, correct)

	return nil
}

func (r *Room) applyScoreLocked(p *Player, correct bool) {
	if p == nil {
		return
	}

	if correct {
		p.Score += r.settings.PointsCorrect
	} else {
		p.Score += r.settings.PointsWrong
	}

	if r.policy.FloorScores && p.Score < 0 {
		p.Score = 0
	}
}

func (r *Room) onQuestionTimeout(round, token uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.round != round || r.phase != phaseBuzz || !r.timers.claim(slotQuestion, token) {
		return
	}

	r.logger.Debug("nobody buzzed", "question", r.index+1)

	r.resolveLocked(nil, nil, false)
}

func (r *Room) onAnswerTimeout(round, token uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.round != round || r.phase != phaseAnswer || r.awaiting == "" || !r.timers.claim(slotAnswer, token) {
		return
	}

	p := r.playerLocked(r.awaiting)
	r.awaiting = ""
	r.applyScoreLocked(p, false)

	r.logger.Debug("answer timed out", "question", r.index+1)

	r.resolveLocked(p, nil, false)
}

// resolveLocked publishes the round outcome and schedules the next round.
// Score changes must already be applied.
func (r *Room) resolveLocked(winner *Player, answer *string, correct bool) {
	r.phase = phaseResult
	r.buzzWinner = ""
	r.awaiting = ""
	r.timers.stop(slotQuestion)
	r.timers.stop(slotAnswer)

	var ref *PlayerRef
	if winner != nil {
		ref = &PlayerRef{ID: winner.ID, Name: winner.Name}
	}

	r.broadcastLocked(RoundResultMessage{
		Type:           "round-result",
		GameCode:       r.code,
		Winner:         ref,
		Answer:         answer,
		CorrectAnswer:  r.questions[r.index].Answer,
		IsCorrect:      correct,
		PointsCorrect:  r.settings.PointsCorrect,
		PointsWrong:    r.settings.PointsWrong,
		QuestionNumber: r.index + 1,
		TotalQuestions: len(r.questions),
		Scoreboard:     r.scoreboardLocked(),
	})

	round := r.round
	r.timers.arm(slotNext, r.policy.NextRoundDelay, func(token uint64) {
		r.onNextRound(round, token)
	})
}

func (r *Room) onNextRound(round, token uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.round != round || r.phase != phaseResult || !r.timers.claim(slotNext, token) {
		return
	}

	r.index++
	if r.index >= len(r.questions) {
		r.finishLocked()
		return
	}

	r.startRoundLocked()
}

func (r *Room) finishLocked() {
	r.state = StateFinished
	r.phase = phaseIdle

	r.logger.Info("game over", "players", len(r.players))

	r.broadcastLocked(GameOverMessage{
		Type:       "game-over",
		GameCode:   r.code,
		Scoreboard: r.scoreboardLocked(),
	})
	r.broadcastRoomUpdateLocked()

	r.timers.arm(slotClose, r.policy.FinishedGrace, r.onCloseTimer)
}

func (r *Room) onCloseTimer(token uint64) {
	r.mu.Lock()
	if r.closed || !r.timers.claim(slotClose, token) {
		r.mu.Unlock()
		return
	}
	r.closeLocked("The game is over and the room has closed.")
	r.mu.Unlock()

	r.release()
}

// Close shuts the room down and tells everyone still attached why.
func (r *Room) Close(reason string) {
	r.mu.Lock()
	r.closeLocked(reason)
	r.mu.Unlock()

	r.release()
}

func (r *Room) closeLocked(reason string) {
	if r.closed {
		return
	}

	r.closed = true
	r.phase = phaseIdle
	r.buzzWinner = ""
	r.awaiting = ""
	r.timers.stopAll()
	r.cancel()

	if reason != "" {
		r.broadcastLocked(SimpleMessage{
			Type:     "room-closed",
			GameCode: r.code,
			Message:  reason,
		})
	}

	r.players = nil
	clear(r.watchers)

	r.logger.Info("room closed", "lifetime", time.Since(r.createdAt).Round(time.Second))
}

func (r *Room) release() {
	if r.released != nil {
		r.released(r)
	}
}

// idle reports whether the room has seen no activity since cutoff.
func (r *Room) idle(cutoff time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lastActive.Before(cutoff)
}

// RoomSummary is the public view of a room; it never includes answers.
type RoomSummary struct {
	Code           string       `json:"gameCode"`
	State          RoomState    `json:"state"`
	Settings       Settings     `json:"settings"`
	Players        []PlayerView `json:"players"`
	QuestionNumber int          `json:"questionNumber,omitempty"`
	TotalQuestions int          `json:"totalQuestions,omitempty"`
	BuzzWinnerID   string       `json:"buzzWinnerId,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

func (r *Room) Summary() RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := RoomSummary{
		Code:         r.code,
		State:        r.state,
		Settings:     r.settings,
		Players:      r.scoreboardLocked(),
		BuzzWinnerID: r.buzzWinner,
		CreatedAt:    r.createdAt,
	}
	if r.state == StatePlaying {
		s.QuestionNumber = r.index + 1
		s.TotalQuestions = len(r.questions)
	}

	return s
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
