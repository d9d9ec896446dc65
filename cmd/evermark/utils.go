// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/ipfsnut/evermark-contracts/log"
	"github.com/ipfsnut/evermark-contracts/logdb"
	"github.com/ipfsnut/evermark-contracts/lvldb"
)

func initLogger(ctx *cli.Context) *slog.LevelVar {
	var lvl slog.LevelVar
	switch ctx.Uint64(verbosityFlag.Name) {
	case 0:
		lvl.Set(log.LevelError)
	case 1:
		lvl.Set(log.LevelWarn)
	case 2:
		lvl.Set(log.LevelInfo)
	case 3:
		lvl.Set(log.LevelDebug)
	default:
		lvl.Set(log.LevelTrace)
	}

	if ctx.Bool(jsonLogsFlag.Name) {
		log.SetDefault(log.NewLogger(log.JSONHandlerWithLevel(os.Stderr, &lvl)))
	} else {
		useColor := isatty.IsTerminal(os.Stderr.Fd()) && os.Getenv("TERM") != "dumb"
		log.SetDefault(log.NewTerminalLogger(useColor, &lvl))
	}
	return &lvl
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".evermark")
}

func makeInstanceDir(ctx *cli.Context) (string, error) {
	dir := ctx.String(dataDirFlag.Name)
	if dir == "" {
		return "", errors.Errorf("unable to infer default data dir, use -%s to specify one", dataDirFlag.Name)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", errors.Wrapf(err, "create data dir [%v]", dir)
	}
	return dir, nil
}

func openMainDB(instanceDir string) (*lvldb.LevelDB, error) {
	db, err := lvldb.New(filepath.Join(instanceDir, "main.db"), lvldb.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "open main database")
	}
	return db, nil
}

func openLogDB(instanceDir string) (*logdb.LogDB, error) {
	db, err := logdb.New(filepath.Join(instanceDir, "events.db"))
	if err != nil {
		return nil, errors.Wrap(err, "open event database")
	}
	return db, nil
}

func handleExitSignal() {
	exitSignalCh := make(chan os.Signal, 1)
	signal.Notify(exitSignalCh, os.Interrupt, syscall.SIGTERM)
	sig := <-exitSignalCh
	logger.Info("exit signal received", "signal", sig)
}

func printStartupMessage(instanceDir, apiURL, adminURL, metricsURL string) {
	fmt.Printf(`Starting %v
    Instance dir  [ %v ]
    API portal    [ %v ]`,
		"Evermark",
		instanceDir,
		apiURL,
	)
	if adminURL != "" {
		fmt.Printf(`
    Admin portal  [ %v ]`, adminURL)
	}
	if metricsURL != "" {
		fmt.Printf(`
    Metrics       [ %v ]`, metricsURL)
	}
	fmt.Println()
}
