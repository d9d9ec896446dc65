// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/ipfsnut/evermark-contracts/builtin"
)

// fileConfig is the YAML shape of the optional protocol parameter overrides.
// Zero fields keep the compiled-in defaults.
type fileConfig struct {
	CycleDuration     uint64 `yaml:"cycleDuration"`
	WeekDuration      uint64 `yaml:"weekDuration"`
	UnbondPeriod      uint64 `yaml:"unbondPeriod"`
	MaxActivePerCycle uint64 `yaml:"maxActivePerCycle"`
	MaxLeaderboard    uint64 `yaml:"maxLeaderboard"`
	MaxPageSize       uint64 `yaml:"maxPageSize"`
	MaxBatchSize      int    `yaml:"maxBatchSize"`
	StakerPoolBps     uint64 `yaml:"stakerPoolBps"`
	BasePoolBps       uint64 `yaml:"basePoolBps"`
	Executor          string `yaml:"executor"`
}

// loadConfig reads path and applies its overrides on top of the defaults.
// An empty path returns the defaults unchanged.
func loadConfig(path string) (builtin.Config, string, error) {
	cfg := builtin.DefaultConfig()
	if path == "" {
		return cfg, "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, "", errors.Wrap(err, "read config file")
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, "", errors.Wrap(err, "parse config file")
	}

	if fc.CycleDuration != 0 {
		cfg.CycleDuration = fc.CycleDuration
	}
	if fc.WeekDuration != 0 {
		cfg.WeekDuration = fc.WeekDuration
	}
	if fc.UnbondPeriod != 0 {
		cfg.UnbondPeriod = fc.UnbondPeriod
	}
	if fc.MaxActivePerCycle != 0 {
		cfg.MaxActivePerCycle = fc.MaxActivePerCycle
	}
	if fc.MaxLeaderboard != 0 {
		cfg.MaxLeaderboard = fc.MaxLeaderboard
	}
	if fc.MaxPageSize != 0 {
		cfg.MaxPageSize = fc.MaxPageSize
	}
	if fc.MaxBatchSize != 0 {
		cfg.MaxBatchSize = fc.MaxBatchSize
	}
	if fc.StakerPoolBps != 0 {
		cfg.StakerPoolBps = fc.StakerPoolBps
	}
	if fc.BasePoolBps != 0 {
		cfg.BasePoolBps = fc.BasePoolBps
	}
	if cfg.StakerPoolBps > 10000 || cfg.BasePoolBps > 10000 {
		return cfg, "", errors.New("pool bps must not exceed 10000")
	}
	return cfg, fc.Executor, nil
}
