// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package api exposes the protocol's read surface over HTTP: cycles, tallies,
// leaderboards, reward weeks, staking positions, and the protocol event log.
package api

import (
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/ipfsnut/evermark-contracts/api/events"
	"github.com/ipfsnut/evermark-contracts/api/leaderboard"
	"github.com/ipfsnut/evermark-contracts/api/rewards"
	"github.com/ipfsnut/evermark-contracts/api/stakes"
	"github.com/ipfsnut/evermark-contracts/api/voting"
	"github.com/ipfsnut/evermark-contracts/log"
	"github.com/ipfsnut/evermark-contracts/logdb"
	"github.com/ipfsnut/evermark-contracts/runtime"
)

var logger = log.WithContext("pkg", "api")

type Options struct {
	AllowedOrigins  string
	PprofOn         bool
	EnableReqLogger bool
	EnableMetrics   bool
	LogsLimit       uint64
}

// New returns the assembled api router.
func New(rt *runtime.Runtime, logDB *logdb.LogDB, opts Options) http.HandlerFunc {
	origins := strings.Split(strings.TrimSpace(opts.AllowedOrigins), ",")
	for i, o := range origins {
		origins[i] = strings.ToLower(strings.TrimSpace(o))
	}

	router := mux.NewRouter()

	voting.New(rt).Mount(router, "/cycles")
	leaderboard.New(rt).Mount(router, "/leaderboard")
	rewards.New(rt).Mount(router, "/rewards")
	stakes.New(rt).Mount(router, "/stakes")
	if logDB != nil {
		events.New(logDB, opts.LogsLimit).Mount(router, "/events")
	}

	if opts.PprofOn {
		router.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		router.HandleFunc("/debug/pprof/profile", pprof.Profile)
		router.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		router.HandleFunc("/debug/pprof/trace", pprof.Trace)
		router.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)
	}

	if opts.EnableMetrics {
		router.Use(metricsMiddleware)
	}

	handler := handlers.CompressHandler(router)
	handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedHeaders([]string{"content-type"}),
	)(handler)

	if opts.EnableReqLogger {
		handler = RequestLoggerHandler(handler, logger)
	}

	return handler.ServeHTTP
}
