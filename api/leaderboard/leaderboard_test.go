// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package leaderboard

import (
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipfsnut/evermark-contracts/builtin"
	"github.com/ipfsnut/evermark-contracts/evermark"
	"github.com/ipfsnut/evermark-contracts/lvldb"
	"github.com/ipfsnut/evermark-contracts/runtime"
	"github.com/ipfsnut/evermark-contracts/state"
)

var (
	executor = evermark.Address{0xee}
	creator  = evermark.Address{0xc1}
)

func newServer(t *testing.T) (*httptest.Server, *runtime.Runtime) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	rt := runtime.New(state.New(db), builtin.DefaultConfig(), nil)
	require.NoError(t, rt.Genesis(executor))

	router := mux.NewRouter()
	New(rt).Mount(router, "/leaderboard")
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts, rt
}

// seedBoard votes two candidates into cycle 1 and finalizes its leaderboard.
func seedBoard(t *testing.T, rt *runtime.Runtime) {
	cfg := builtin.DefaultConfig()

	_, _, err := rt.MintEvermark(creator, evermark.Bytes32{0x01}, 10)
	require.NoError(t, err)
	_, _, err = rt.MintEvermark(creator, evermark.Bytes32{0x02}, 10)
	require.NoError(t, err)

	_, err = rt.Wrap(executor, big.NewInt(1000), 20)
	require.NoError(t, err)
	_, err = rt.Delegate(executor, 1, big.NewInt(300), 100)
	require.NoError(t, err)
	_, err = rt.Delegate(executor, 2, big.NewInt(700), 100)
	require.NoError(t, err)

	_, _, err = rt.CheckAndAdvance(100 + cfg.CycleDuration + 1)
	require.NoError(t, err)
	_, err = rt.FinalizeLeaderboard(1, 100+cfg.CycleDuration+1)
	require.NoError(t, err)
}

func httpGet(t *testing.T, url string) ([]byte, int) {
	res, err := http.Get(url)
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.NoError(t, res.Body.Close())
	return body, res.StatusCode
}

func TestGetBoard(t *testing.T) {
	ts, rt := newServer(t)
	seedBoard(t, rt)

	body, code := httpGet(t, ts.URL+"/leaderboard/1")
	require.Equal(t, http.StatusOK, code)

	var board Board
	require.NoError(t, json.Unmarshal(body, &board))
	assert.Equal(t, uint64(1), board.CycleID)
	assert.True(t, board.Finalized)
	require.Len(t, board.Entries, 2)
	assert.Equal(t, uint64(2), board.Entries[0].CandidateID)
	assert.Equal(t, uint64(1), board.Entries[0].Rank)
	assert.Equal(t, creator, board.Entries[0].Creator)
	assert.Equal(t, uint64(1), board.Entries[1].CandidateID)
}

func TestGetBoardPaged(t *testing.T) {
	ts, rt := newServer(t)
	seedBoard(t, rt)

	body, code := httpGet(t, ts.URL+"/leaderboard/1?offset=1&limit=1")
	require.Equal(t, http.StatusOK, code)

	var board Board
	require.NoError(t, json.Unmarshal(body, &board))
	require.Len(t, board.Entries, 1)
	assert.Equal(t, uint64(2), board.Entries[0].Rank)
	assert.Equal(t, uint64(1), board.Entries[0].CandidateID)

	// limit above the page cap is rejected
	_, code = httpGet(t, ts.URL+"/leaderboard/1?limit=9999")
	assert.Equal(t, http.StatusForbidden, code)

	_, code = httpGet(t, ts.URL+"/leaderboard/notanumber")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGetRank(t *testing.T) {
	ts, rt := newServer(t)
	seedBoard(t, rt)

	body, code := httpGet(t, ts.URL+"/leaderboard/1/candidates/2")
	require.Equal(t, http.StatusOK, code)

	var got map[string]uint64
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, uint64(1), got["rank"])

	_, code = httpGet(t, ts.URL+"/leaderboard/1/candidates/99")
	assert.Equal(t, http.StatusNotFound, code)
}
