/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

var (
	ErrValidation   = errors.New("invalid request")
	ErrRoomNotFound = errors.New("room not found")
	ErrConflict     = errors.New("conflicting action")
	ErrProvider     = errors.New("question provider failed")
	ErrRegistryFull = errors.New("no free room codes")
)

// requestError carries the text shown to the client alongside its class.
type requestError struct {
	kind error
	msg  string
}

func (e *requestError) Error() string { return e.kind.Error() + ": " + e.msg }

func (e *requestError) Unwrap() error { return e.kind }

func validationf(format string, args ...any) error {
	return &requestError{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) error {
	return &requestError{kind: ErrConflict, msg: fmt.Sprintf(format, args...)}
}

// userMessage maps an error to the text sent back to the client that caused it.
func userMessage(err error) string {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return reqErr.msg
	}

	switch {
	case errors.Is(err, ErrRoomNotFound):
		return "Room not found."
	case errors.Is(err, ErrRegistryFull):
		return "No rooms available, please try again later."
	case errors.Is(err, ErrProvider):
		return "Could not load questions, please try again."
	default:
		return "An error has occurred. Please try again."
	}
}

func newLogger(cfg *Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}

	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: logDate,
	}))
}

func elapsed(start time.Time) slog.Attr {
	return slog.Duration("elapsed", time.Since(start).Round(time.Microsecond))
}
