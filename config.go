/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	allowedOrigins []string
	autoStart      bool
	bind           string
	finishedGrace  time.Duration
	floorScores    bool
	idleTimeout    time.Duration
	nextRoundDelay time.Duration
	port           int
	prefix         string
	profile        bool
	publicURL      string
	questions      string
	rateBurst      int
	rateLimit      float64
	redisAddr      string
	redisDB        int
	redisPassword  string
	redisPrefix    string
	startPolicy    string
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	switch StartMode(c.startPolicy) {
	case StartAnyone, StartCreator:
	default:
		return fmt.Errorf("invalid start policy (must be one of anyone, creator): %q", c.startPolicy)
	}
	if c.idleTimeout < 0 || c.finishedGrace < 0 || c.nextRoundDelay < 0 {
		return errors.New("durations must not be negative")
	}
	if c.rateLimit <= 0 || c.rateBurst < 1 {
		return fmt.Errorf("invalid rate limit: %v/s with burst %d", c.rateLimit, c.rateBurst)
	}
	if c.publicURL != "" {
		u, err := url.Parse(c.publicURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid public url: %q", c.publicURL)
		}
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func (c *Config) policy() Policy {
	return Policy{
		StartMode:      StartMode(c.startPolicy),
		AutoStart:      c.autoStart,
		FloorScores:    c.floorScores,
		NextRoundDelay: c.nextRoundDelay,
		FinishedGrace:  c.finishedGrace,
	}
}

// originAllowed reports whether a browser origin may connect. An empty
// allow-list admits everyone, as does a request with no Origin header.
func (c *Config) originAllowed(origin string) bool {
	if origin == "" || len(c.allowedOrigins) == 0 {
		return true
	}
	for _, o := range c.allowedOrigins {
		if strings.EqualFold(strings.TrimSuffix(o, "/"), origin) {
			return true
		}
	}
	return false
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("BUZZBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "buzzbox",
		Short:         "A multiplayer trivia buzzer game server.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringSliceVar(&cfg.allowedOrigins, "allowed-origins", nil, "origins allowed to connect, empty allows all (env: BUZZBOX_ALLOWED_ORIGINS)")
	fs.BoolVar(&cfg.autoStart, "auto-start", false, "start a game as soon as its room is full (env: BUZZBOX_AUTO_START)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: BUZZBOX_BIND)")
	fs.DurationVar(&cfg.finishedGrace, "finished-grace", 5*time.Minute, "time a finished game stays open for late viewers (env: BUZZBOX_FINISHED_GRACE)")
	fs.BoolVar(&cfg.floorScores, "floor-scores", false, "never let a wrong answer push a score below zero (env: BUZZBOX_FLOOR_SCORES)")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", 60*time.Minute, "time before idle rooms are closed, 0 disables (env: BUZZBOX_IDLE_TIMEOUT)")
	fs.DurationVar(&cfg.nextRoundDelay, "next-round-delay", 2500*time.Millisecond, "pause between a round result and the next question (env: BUZZBOX_NEXT_ROUND_DELAY)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: BUZZBOX_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: BUZZBOX_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: BUZZBOX_PROFILE)")
	fs.StringVar(&cfg.publicURL, "public-url", "", "base URL encoded in room QR codes, defaults to the request host (env: BUZZBOX_PUBLIC_URL)")
	fs.StringVarP(&cfg.questions, "questions", "q", "", "JSON file of questions, built-in questions if unset (env: BUZZBOX_QUESTIONS)")
	fs.IntVar(&cfg.rateBurst, "rate-burst", 20, "messages a connection may send in a burst (env: BUZZBOX_RATE_BURST)")
	fs.Float64Var(&cfg.rateLimit, "rate-limit", 10, "sustained messages per second per connection (env: BUZZBOX_RATE_LIMIT)")
	fs.StringVar(&cfg.redisAddr, "redis-addr", "", "serve questions from this redis server (env: BUZZBOX_REDIS_ADDR)")
	fs.IntVar(&cfg.redisDB, "redis-db", 0, "redis database number (env: BUZZBOX_REDIS_DB)")
	fs.StringVar(&cfg.redisPassword, "redis-password", "", "redis password (env: BUZZBOX_REDIS_PASSWORD)")
	fs.StringVar(&cfg.redisPrefix, "redis-prefix", "buzzbox", "key prefix for questions stored in redis (env: BUZZBOX_REDIS_PREFIX)")
	fs.StringVar(&cfg.startPolicy, "start-policy", string(StartAnyone), "who may start a game: anyone, creator (env: BUZZBOX_START_POLICY)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: BUZZBOX_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: BUZZBOX_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: BUZZBOX_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: BUZZBOX_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("buzzbox v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
