// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipfsnut/evermark-contracts/builtin"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, executor, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, builtin.DefaultConfig(), cfg)
	assert.Empty(t, executor)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cycleDuration: 3600
maxBatchSize: 5
stakerPoolBps: 7000
executor: "0x00112233445566778899aabbccddeeff00112233"
`), 0o600))

	cfg, executor, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(3600), cfg.CycleDuration)
	assert.Equal(t, 5, cfg.MaxBatchSize)
	assert.Equal(t, uint64(7000), cfg.StakerPoolBps)
	// untouched fields keep their defaults
	assert.Equal(t, builtin.DefaultConfig().WeekDuration, cfg.WeekDuration)
	assert.Equal(t, "0x00112233445566778899aabbccddeeff00112233", executor)
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stakerPoolBps: 20000\n"), 0o600))

	_, _, err := loadConfig(path)
	assert.Error(t, err)

	_, _, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
