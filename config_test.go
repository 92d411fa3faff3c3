/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		bind:           "127.0.0.1",
		finishedGrace:  5 * time.Minute,
		idleTimeout:    time.Hour,
		nextRoundDelay: 2500 * time.Millisecond,
		port:           8080,
		rateBurst:      20,
		rateLimit:      10,
		redisPrefix:    "buzzbox",
		startPolicy:    string(StartAnyone),
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, testConfig().validate())

	tests := map[string]func(c *Config){
		"cert without key": func(c *Config) { c.tlsCert = "cert.pem" },
		"port zero":        func(c *Config) { c.port = 0 },
		"port too high":    func(c *Config) { c.port = 70000 },
		"start policy":     func(c *Config) { c.startPolicy = "host" },
		"negative grace":   func(c *Config) { c.finishedGrace = -time.Second },
		"rate limit":       func(c *Config) { c.rateLimit = 0 },
		"rate burst":       func(c *Config) { c.rateBurst = 0 },
		"public url":       func(c *Config) { c.publicURL = "not a url" },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := testConfig()
			mutate(c)
			assert.Error(t, c.validate())
		})
	}
}

func TestConfigPolicy(t *testing.T) {
	c := testConfig()
	c.startPolicy = string(StartCreator)
	c.autoStart = true
	c.floorScores = true

	assert.Equal(t, Policy{
		StartMode:      StartCreator,
		AutoStart:      true,
		FloorScores:    true,
		NextRoundDelay: 2500 * time.Millisecond,
		FinishedGrace:  5 * time.Minute,
	}, c.policy())
}

func TestConfigScheme(t *testing.T) {
	c := testConfig()
	assert.Equal(t, "http", c.scheme())

	c.tlsCert, c.tlsKey = "cert.pem", "key.pem"
	assert.Equal(t, "https", c.scheme())
}

func TestOriginAllowed(t *testing.T) {
	c := testConfig()
	assert.True(t, c.originAllowed("https://anything.example"))

	c.allowedOrigins = []string{"https://quiz.example/"}
	assert.True(t, c.originAllowed(""))
	assert.True(t, c.originAllowed("https://QUIZ.example"))
	assert.False(t, c.originAllowed("https://evil.example"))
}

func TestNewCmdDefaults(t *testing.T) {
	cfg := &Config{}
	cmd := newCmd(cfg)

	require.NoError(t, cmd.ParseFlags([]string{"--port", "9090", "--start-policy", "creator"}))

	assert.Equal(t, 9090, cfg.port)
	assert.Equal(t, "creator", cfg.startPolicy)
	assert.Equal(t, "0.0.0.0", cfg.bind)
	assert.Equal(t, 2500*time.Millisecond, cfg.nextRoundDelay)
	assert.NoError(t, cfg.validate())
}

func TestNewCmdEnvironment(t *testing.T) {
	t.Setenv("BUZZBOX_PORT", "7070")
	t.Setenv("BUZZBOX_FLOOR_SCORES", "true")

	cfg := &Config{}
	newCmd(cfg)

	assert.Equal(t, 7070, cfg.port)
	assert.True(t, cfg.floorScores)
}
