// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/ipfsnut/evermark-contracts/api"
	"github.com/ipfsnut/evermark-contracts/cmd/evermark/httpserver"
	"github.com/ipfsnut/evermark-contracts/evermark"
	"github.com/ipfsnut/evermark-contracts/log"
	"github.com/ipfsnut/evermark-contracts/metrics"
	"github.com/ipfsnut/evermark-contracts/runtime"
	"github.com/ipfsnut/evermark-contracts/state"
)

var (
	version   string
	gitCommit string
	gitTag    string

	logger = log.WithContext("pkg", "main")
)

func fullVersion() string {
	versionMeta := "release"
	if gitTag == "" {
		versionMeta = "dev"
	}
	return fmt.Sprintf("%s-%s-%s", version, gitCommit, versionMeta)
}

func main() {
	app := cli.App{
		Version:   fullVersion(),
		Name:      "Evermark",
		Usage:     "Node of the Evermark content curation protocol",
		Copyright: "2025 The Evermark developers",
		Flags: []cli.Flag{
			dataDirFlag,
			configFlag,
			executorFlag,
			apiAddrFlag,
			apiCorsFlag,
			apiTimeoutFlag,
			apiLogsLimitFlag,
			enableAPILogsFlag,
			pprofFlag,
			verbosityFlag,
			jsonLogsFlag,
			enableAdminFlag,
			adminAddrFlag,
			enableMetricsFlag,
			metricsAddrFlag,
			liveRankingFlag,
			gasBudgetFlag,
		},
		Action: defaultAction,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultAction(ctx *cli.Context) error {
	defer func() { logger.Info("exited") }()

	lvl := initLogger(ctx)

	if ctx.Bool(enableMetricsFlag.Name) {
		metrics.InitializePrometheusMetrics()
		url, closeFunc, err := httpserver.StartMetricsServer(ctx.String(metricsAddrFlag.Name))
		if err != nil {
			return errors.Wrap(err, "start metrics server")
		}
		logger.Info("metrics server started", "url", url)
		defer closeFunc()
	}

	cfg, cfgExecutor, err := loadConfig(ctx.String(configFlag.Name))
	if err != nil {
		return err
	}

	instanceDir, err := makeInstanceDir(ctx)
	if err != nil {
		return err
	}

	mainDB, err := openMainDB(instanceDir)
	if err != nil {
		return err
	}
	defer func() { logger.Info("closing main database..."); mainDB.Close() }()

	logDB, err := openLogDB(instanceDir)
	if err != nil {
		return err
	}
	defer func() { logger.Info("closing event database..."); logDB.Close() }()

	rt := runtime.New(state.New(mainDB), cfg, logDB)
	rt.SetGasBudget(ctx.Uint64(gasBudgetFlag.Name))
	if ctx.Bool(liveRankingFlag.Name) {
		rt.EnableLiveRanking()
	}

	if err := ensureGenesis(ctx, rt, cfgExecutor); err != nil {
		return err
	}

	apiHandler := api.New(rt, logDB, api.Options{
		AllowedOrigins:  ctx.String(apiCorsFlag.Name),
		PprofOn:         ctx.Bool(pprofFlag.Name),
		EnableReqLogger: ctx.Bool(enableAPILogsFlag.Name),
		EnableMetrics:   ctx.Bool(enableMetricsFlag.Name),
		LogsLimit:       ctx.Uint64(apiLogsLimitFlag.Name),
	})
	apiURL, apiClose, err := httpserver.StartAPIServer(
		ctx.String(apiAddrFlag.Name),
		apiHandler,
		time.Duration(ctx.Uint64(apiTimeoutFlag.Name))*time.Millisecond,
	)
	if err != nil {
		return errors.Wrap(err, "start API server")
	}
	defer func() { logger.Info("stopping API server..."); apiClose() }()

	var adminURL string
	if ctx.Bool(enableAdminFlag.Name) {
		url, closeFunc, err := httpserver.StartAdminServer(
			ctx.String(adminAddrFlag.Name),
			lvl,
			func() error { _, err := rt.Contracts().Voting.CurrentCycleID(); return err },
		)
		if err != nil {
			return errors.Wrap(err, "start admin server")
		}
		adminURL = url
		defer closeFunc()
	}

	var metricsURL string
	if ctx.Bool(enableMetricsFlag.Name) {
		metricsURL = "http://" + ctx.String(metricsAddrFlag.Name) + "/metrics"
	}
	printStartupMessage(instanceDir, apiURL, adminURL, metricsURL)

	handleExitSignal()
	return nil
}

// ensureGenesis initializes a fresh state; reruns verify the recorded executor
// instead of re-initializing.
func ensureGenesis(ctx *cli.Context, rt *runtime.Runtime, cfgExecutor string) error {
	recorded, err := rt.Contracts().Params.Executor()
	if err != nil {
		return err
	}
	if !recorded.IsZero() {
		logger.Info("state initialized", "executor", recorded)
		return nil
	}

	spec := ctx.String(executorFlag.Name)
	if spec == "" {
		spec = cfgExecutor
	}
	if spec == "" {
		return errors.Errorf("fresh state: -%s required to initialize", executorFlag.Name)
	}
	executor, err := evermark.ParseAddress(spec)
	if err != nil {
		return errors.Wrap(err, "parse executor address")
	}
	if err := rt.Genesis(*executor); err != nil {
		return errors.Wrap(err, "initialize state")
	}
	logger.Info("genesis applied",
		"executor", executor,
		"initialSupply", evermark.InitialTokenSupply,
	)
	return nil
}
