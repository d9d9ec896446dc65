// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package admin serves the operator-facing endpoints: health probing and
// run-time log level control. It is meant to listen on a separate, non-public
// address.
package admin

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/ipfsnut/evermark-contracts/api/restutil"
	"github.com/ipfsnut/evermark-contracts/log"
)

// HealthFunc reports nil when the node is able to serve.
type HealthFunc func() error

type logLevelRequest struct {
	Level string `json:"level"`
}

type logLevelResponse struct {
	CurrentLevel string `json:"currentLevel"`
}

// New returns the admin handler.
func New(logLevel *slog.LevelVar, health HealthFunc) http.HandlerFunc {
	router := mux.NewRouter()

	sub := router.PathPrefix("/admin").Subrouter()
	sub.Path("/health").
		Methods(http.MethodGet).
		Name("GET /admin/health").
		HandlerFunc(restutil.WrapHandlerFunc(healthHandler(health)))
	sub.Path("/loglevel").
		Methods(http.MethodGet).
		Name("GET /admin/loglevel").
		HandlerFunc(restutil.WrapHandlerFunc(getLogLevelHandler(logLevel)))
	sub.Path("/loglevel").
		Methods(http.MethodPost).
		Name("POST /admin/loglevel").
		HandlerFunc(restutil.WrapHandlerFunc(postLogLevelHandler(logLevel)))

	return handlers.CompressHandler(router).ServeHTTP
}

func healthHandler(health HealthFunc) restutil.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) error {
		if health != nil {
			if err := health(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				return restutil.WriteJSON(w, restutil.M{"healthy": false, "error": err.Error()})
			}
		}
		return restutil.WriteJSON(w, restutil.M{"healthy": true})
	}
}

func getLogLevelHandler(logLevel *slog.LevelVar) restutil.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) error {
		return restutil.WriteJSON(w, logLevelResponse{
			CurrentLevel: logLevel.Level().String(),
		})
	}
}

func postLogLevelHandler(logLevel *slog.LevelVar) restutil.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		var req logLevelRequest
		if err := restutil.ParseJSON(r.Body, &req); err != nil {
			return restutil.BadRequest(errors.WithMessage(err, "body"))
		}

		switch req.Level {
		case "trace":
			logLevel.Set(log.LevelTrace)
		case "debug":
			logLevel.Set(log.LevelDebug)
		case "info":
			logLevel.Set(log.LevelInfo)
		case "warn":
			logLevel.Set(log.LevelWarn)
		case "error":
			logLevel.Set(log.LevelError)
		default:
			return restutil.BadRequest(errors.New("invalid verbosity level"))
		}

		return restutil.WriteJSON(w, logLevelResponse{
			CurrentLevel: logLevel.Level().String(),
		})
	}
}
