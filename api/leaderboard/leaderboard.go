// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package leaderboard

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/ipfsnut/evermark-contracts/api/restutil"
	"github.com/ipfsnut/evermark-contracts/builtin/leaderboard"
	"github.com/ipfsnut/evermark-contracts/builtin/reverts"
	"github.com/ipfsnut/evermark-contracts/evermark"
	"github.com/ipfsnut/evermark-contracts/runtime"
)

type Leaderboard struct {
	rt *runtime.Runtime
}

func New(rt *runtime.Runtime) *Leaderboard {
	return &Leaderboard{rt}
}

// Entry is the JSON shape of one ranked candidate.
type Entry struct {
	Rank        uint64                `json:"rank"`
	CandidateID uint64                `json:"candidateId"`
	Votes       *math.HexOrDecimal256 `json:"votes,string"`
	Creator     evermark.Address      `json:"creator"`
}

// Board is a page of a cycle's leaderboard.
type Board struct {
	CycleID   uint64   `json:"cycleId"`
	Size      uint64   `json:"size"`
	Finalized bool     `json:"finalized"`
	Entries   []*Entry `json:"entries"`
}

func convertEntry(rank uint64, e *leaderboard.Entry) *Entry {
	votes := math.HexOrDecimal256(*e.Votes)
	return &Entry{
		Rank:        rank,
		CandidateID: e.CandidateID,
		Votes:       &votes,
		Creator:     e.Creator,
	}
}

func (l *Leaderboard) handleGetBoard(w http.ResponseWriter, req *http.Request) error {
	cycleID, err := parseUint(mux.Vars(req)["cycle"])
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "cycle"))
	}
	offset, limit, err := parsePage(req)
	if err != nil {
		return err
	}

	ranker := l.rt.Contracts().Leaderboard
	size, err := ranker.Size(cycleID)
	if err != nil {
		return err
	}
	finalized, err := ranker.Finalized(cycleID)
	if err != nil {
		return err
	}
	page, err := ranker.GetPage(cycleID, offset, limit)
	if err != nil {
		return convertRevert(err)
	}

	entries := make([]*Entry, len(page))
	for i, e := range page {
		entries[i] = convertEntry(offset+uint64(i)+1, e)
	}
	return restutil.WriteJSON(w, &Board{
		CycleID:   cycleID,
		Size:      size,
		Finalized: finalized,
		Entries:   entries,
	})
}

func (l *Leaderboard) handleGetRank(w http.ResponseWriter, req *http.Request) error {
	vars := mux.Vars(req)
	cycleID, err := parseUint(vars["cycle"])
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "cycle"))
	}
	candidateID, err := parseUint(vars["candidate"])
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "candidate"))
	}

	rank, err := l.rt.Contracts().Leaderboard.GetRank(cycleID, candidateID)
	if err != nil {
		return convertRevert(err)
	}
	if rank == 0 {
		return restutil.NotFound(errors.New("candidate not ranked"))
	}
	return restutil.WriteJSON(w, restutil.M{"cycleId": cycleID, "candidateId": candidateID, "rank": rank})
}

func (l *Leaderboard) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/{cycle}").
		Methods(http.MethodGet).
		Name("GET /leaderboard/{cycle}").
		HandlerFunc(restutil.WrapHandlerFunc(l.handleGetBoard))
	sub.Path("/{cycle}/candidates/{candidate}").
		Methods(http.MethodGet).
		Name("GET /leaderboard/{cycle}/candidates/{candidate}").
		HandlerFunc(restutil.WrapHandlerFunc(l.handleGetRank))
}

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func parsePage(req *http.Request) (offset, limit uint64, err error) {
	query := req.URL.Query()
	limit = evermark.MaxPageSize
	if v := query.Get("offset"); v != "" {
		if offset, err = parseUint(v); err != nil {
			return 0, 0, restutil.BadRequest(errors.WithMessage(err, "offset"))
		}
	}
	if v := query.Get("limit"); v != "" {
		if limit, err = parseUint(v); err != nil {
			return 0, 0, restutil.BadRequest(errors.WithMessage(err, "limit"))
		}
	}
	return offset, limit, nil
}

func convertRevert(err error) error {
	if !reverts.IsRevertErr(err) {
		return err
	}
	kind, _ := reverts.KindOf(err)
	switch kind {
	case reverts.Capacity:
		return restutil.Forbidden(err)
	default:
		return restutil.BadRequest(err)
	}
}
