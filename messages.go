/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

// Messages coming from clients
type ClientMessage struct {
	Type       string    `json:"type"`                 // "create-room", "join-room", "leave-room", "watch-room", "start-game", "buzz", "submit-answer"
	GameCode   string    `json:"gameCode,omitempty"`   // every type except create-room
	PlayerName string    `json:"playerName,omitempty"` // create-room / join-room
	Settings   *Settings `json:"settings,omitempty"`   // create-room
	Answer     *string   `json:"answer,omitempty"`     // submit-answer
}

// PlayerView is one scoreboard row.
type PlayerView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

type RoomCreatedMessage struct {
	Type     string   `json:"type"` // "room-created" or "room-joined"
	GameCode string   `json:"gameCode"`
	PlayerID string   `json:"playerId"`
	Settings Settings `json:"settings"`
}

type RoomUpdateMessage struct {
	Type     string       `json:"type"` // "room-update"
	GameCode string       `json:"gameCode"`
	State    RoomState    `json:"state"`
	Settings Settings     `json:"settings"`
	Players  []PlayerView `json:"players"`
}

type GameStartedMessage struct {
	Type           string `json:"type"` // "game-started"
	GameCode       string `json:"gameCode"`
	TotalQuestions int    `json:"totalQuestions"`
}

// QuestionMessage is broadcast during the buzz window and must never carry
// the options or the answer.
type QuestionMessage struct {
	Type                string `json:"type"` // "question"
	GameCode            string `json:"gameCode"`
	QuestionNumber      int    `json:"questionNumber"`
	TotalQuestions      int    `json:"totalQuestions"`
	Question            string `json:"question"`
	ImageURL            string `json:"imageUrl,omitempty"`
	IllustrationCaption string `json:"illustrationCaption,omitempty"`
	BuzzerSeconds       int    `json:"buzzerSeconds"`
}

type PlayerRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type BuzzWinnerMessage struct {
	Type     string    `json:"type"` // "buzz-winner"
	GameCode string    `json:"gameCode"`
	Winner   PlayerRef `json:"winner"`
}

// AnswerOptionsMessage goes to the buzz winner only.
type AnswerOptionsMessage struct {
	Type          string   `json:"type"` // "answer-options"
	GameCode      string   `json:"gameCode"`
	Options       []string `json:"options"`
	AnswerSeconds int      `json:"answerSeconds"`
}

type RoundResultMessage struct {
	Type           string       `json:"type"` // "round-result"
	GameCode       string       `json:"gameCode"`
	Winner         *PlayerRef   `json:"winner"`
	Answer         *string      `json:"answer"`
	CorrectAnswer  string       `json:"correctAnswer"`
	IsCorrect      bool         `json:"isCorrect"`
	PointsCorrect  int          `json:"pointsCorrect"`
	PointsWrong    int          `json:"pointsWrong"`
	QuestionNumber int          `json:"questionNumber"`
	TotalQuestions int          `json:"totalQuestions"`
	Scoreboard     []PlayerView `json:"scoreboard"`
}

type GameOverMessage struct {
	Type       string       `json:"type"` // "game-over"
	GameCode   string       `json:"gameCode"`
	Scoreboard []PlayerView `json:"scoreboard"`
}

// SimpleMessage is for generic notifications ("error-message", "room-closed").
type SimpleMessage struct {
	Type     string `json:"type"`
	GameCode string `json:"gameCode,omitempty"`
	Message  string `json:"message"`
}

func errorMessage(err error) SimpleMessage {
	return SimpleMessage{
		Type:    "error-message",
		Message: userMessage(err),
	}
}
