/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
)

const (
	logDate string        = `2006-01-02T15:04:05.000-07:00`
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Resource-Policy", "cross-origin")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

// corsHeaders mirrors an allowed Origin back so browser front-ends hosted
// elsewhere can call the JSON endpoints.
func corsHeaders(cfg *Config, w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" || !cfg.originAllowed(origin) {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.Header().Add("Vary", "Origin")
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func writeJSON(cfg *Config, w http.ResponseWriter, r *http.Request, status int, body any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	corsHeaders(cfg, w, r)
	w.WriteHeader(status)

	return json.NewEncoder(w).Encode(body)
}

func serveVersion(cfg *Config, logger *slog.Logger, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("buzzbox v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		logger.Debug("served version", "bytes", written, "client", realIP(r), elapsed(startTime))
	}
}

type healthReport struct {
	Ok    bool   `json:"ok"`
	Rooms int    `json:"rooms"`
	Error string `json:"error,omitempty"`
}

// pinger is implemented by providers backed by an external service.
type pinger interface {
	Ping(ctx context.Context) error
}

func serveHealthCheck(cfg *Config, reg *Registry, provider QuestionProvider, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		report := healthReport{Ok: true, Rooms: reg.Len()}
		status := http.StatusOK

		if pp, ok := provider.(pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := pp.Ping(ctx)
			cancel()

			if err != nil {
				report.Ok = false
				report.Error = err.Error()
				status = http.StatusServiceUnavailable
			}
		}

		if err := writeJSON(cfg, w, r, status, report); err != nil {
			errs <- err
		}
	}
}

func registerProfileHandlers(cfg *Config, mux *httprouter.Router) {
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handler(http.MethodGet, cfg.prefix+"/pprof/"+name, pprof.Handler(name))
	}

	mux.HandlerFunc(http.MethodGet, cfg.prefix+"/pprof/cmdline", pprof.Cmdline)
	mux.HandlerFunc(http.MethodGet, cfg.prefix+"/pprof/profile", pprof.Profile)
	mux.HandlerFunc(http.MethodGet, cfg.prefix+"/pprof/symbol", pprof.Symbol)
	mux.HandlerFunc(http.MethodGet, cfg.prefix+"/pprof/trace", pprof.Trace)
}

// newProvider picks the question source. With a redis address the pool lives
// in redis and is seeded from the questions file when empty.
func newProvider(ctx context.Context, cfg *Config, logger *slog.Logger) (QuestionProvider, error) {
	var pool []Question

	if cfg.questions != "" {
		var err error
		pool, err = loadQuestions(cfg.questions)
		if err != nil {
			return nil, fmt.Errorf("loading questions: %w", err)
		}
		logger.Info("loaded questions", "file", cfg.questions, "count", len(pool))
	}

	if cfg.redisAddr == "" {
		sp := NewStaticProvider(pool)
		logger.Info("serving questions from memory", "count", sp.Len())
		return sp, nil
	}

	rp := NewRedisProvider(redis.NewClient(&redis.Options{
		Addr:     cfg.redisAddr,
		Password: cfg.redisPassword,
		DB:       cfg.redisDB,
	}), cfg.redisPrefix)

	if err := rp.Ping(ctx); err != nil {
		return nil, err
	}

	count, err := rp.Count(ctx)
	if err != nil {
		return nil, err
	}

	if count == 0 {
		if len(pool) == 0 {
			pool = defaultQuestions
		}
		if err := rp.Load(ctx, pool); err != nil {
			return nil, err
		}
		count = len(pool)
	}

	logger.Info("serving questions from redis", "addr", cfg.redisAddr, "count", count)

	return rp, nil
}

func newRouter(cfg *Config, logger *slog.Logger, reg *Registry, provider QuestionProvider, errs chan<- error) *httprouter.Router {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		logger.Error("handler panic", "path", r.URL.Path, "panic", i)

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		io.WriteString(w, "An error has occurred. Please try again.\n")
	}

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, reg, provider, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, logger, errs))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	registerTriviaGame(cfg, logger, reg, mux, errs)

	return mux
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("starting buzzbox", "version", releaseVersion)

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	provider, err := newProvider(ctx, cfg, logger)
	if err != nil {
		return err
	}

	reg := NewRegistry(ctx, RegistryOptions{
		Policy:   cfg.policy(),
		Provider: provider,
		Logger:   logger,
	})

	if cfg.idleTimeout > 0 {
		go reg.reaperLoop(ctx, cfg.idleTimeout)
	}

	errs := make(chan error, 64)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           newRouter(cfg, logger, reg, provider, errs),
		IdleTimeout:       10 * time.Minute,
		ReadHeaderTimeout: timeout,
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-errs:
				logger.Error("request failed", "error", err)
			}
		}
	}()

	serveErr := make(chan error, 1)

	go func() {
		var err error
		logger.Info("listening", "url", fmt.Sprintf("%s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix))
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		reg.Shutdown("The server is shutting down.")
		return err
	}

	logger.Info("shutting down", "rooms", reg.Len())

	reg.Shutdown("The server is shutting down.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return nil
}
