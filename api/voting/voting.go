// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package voting

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/ipfsnut/evermark-contracts/api/restutil"
	"github.com/ipfsnut/evermark-contracts/builtin/reverts"
	"github.com/ipfsnut/evermark-contracts/evermark"
	"github.com/ipfsnut/evermark-contracts/runtime"
)

type Voting struct {
	rt *runtime.Runtime
}

func New(rt *runtime.Runtime) *Voting {
	return &Voting{rt}
}

// Cycle is the JSON shape of one voting cycle.
type Cycle struct {
	CycleID          uint64                `json:"cycleId"`
	StartTime        uint64                `json:"startTime"`
	EndTime          uint64                `json:"endTime"`
	TotalVotes       *math.HexOrDecimal256 `json:"totalVotes,string"`
	DelegationEvents uint64                `json:"delegationEvents"`
	ActiveCount      uint64                `json:"activeCandidates"`
	Finalized        bool                  `json:"finalized"`
}

func (v *Voting) handleGetCurrent(w http.ResponseWriter, req *http.Request) error {
	cycleID, err := v.rt.Contracts().Voting.CurrentCycleID()
	if err != nil {
		return err
	}
	if cycleID == 0 {
		return restutil.NotFound(errors.New("no cycle opened yet"))
	}
	return v.writeCycle(w, cycleID)
}

func (v *Voting) handleGetCycle(w http.ResponseWriter, req *http.Request) error {
	cycleID, err := parseUint(mux.Vars(req)["cycle"])
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "cycle"))
	}
	return v.writeCycle(w, cycleID)
}

func (v *Voting) writeCycle(w http.ResponseWriter, cycleID uint64) error {
	engine := v.rt.Contracts().Voting
	cycle, err := engine.GetCycle(cycleID)
	if err != nil {
		return err
	}
	if cycle.StartTime == 0 && cycleID != 0 {
		cur, err := engine.CurrentCycleID()
		if err != nil {
			return err
		}
		if cycleID > cur {
			return restutil.NotFound(errors.New("cycle not opened"))
		}
	}
	total := math.HexOrDecimal256(*cycle.TotalVotes)
	return restutil.WriteJSON(w, &Cycle{
		CycleID:          cycleID,
		StartTime:        cycle.StartTime,
		EndTime:          cycle.EndTime,
		TotalVotes:       &total,
		DelegationEvents: cycle.DelegationEvents,
		ActiveCount:      cycle.ActiveCount,
		Finalized:        cycle.Finalized,
	})
}

func (v *Voting) handleGetActive(w http.ResponseWriter, req *http.Request) error {
	cycleID, err := parseUint(mux.Vars(req)["cycle"])
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "cycle"))
	}
	ids, err := v.rt.Contracts().Voting.ActiveCandidates(cycleID)
	if err != nil {
		return convertRevert(err)
	}
	return restutil.WriteJSON(w, restutil.M{"cycleId": cycleID, "candidates": ids})
}

func (v *Voting) handleGetCandidateVotes(w http.ResponseWriter, req *http.Request) error {
	vars := mux.Vars(req)
	cycleID, err := parseUint(vars["cycle"])
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "cycle"))
	}
	candidateID, err := parseUint(vars["candidate"])
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "candidate"))
	}
	votes, err := v.rt.Contracts().Voting.CandidateVotes(cycleID, candidateID)
	if err != nil {
		return convertRevert(err)
	}
	out := math.HexOrDecimal256(*votes)
	return restutil.WriteJSON(w, restutil.M{"cycleId": cycleID, "candidateId": candidateID, "votes": &out})
}

func (v *Voting) handleGetUserVotes(w http.ResponseWriter, req *http.Request) error {
	vars := mux.Vars(req)
	cycleID, err := parseUint(vars["cycle"])
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "cycle"))
	}
	user, err := evermark.ParseAddress(vars["address"])
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "address"))
	}
	votes, err := v.rt.Contracts().Voting.UserVotes(cycleID, *user)
	if err != nil {
		return convertRevert(err)
	}
	out := math.HexOrDecimal256(*votes)
	return restutil.WriteJSON(w, restutil.M{"cycleId": cycleID, "user": user, "votes": &out})
}

func (v *Voting) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/current").
		Methods(http.MethodGet).
		Name("GET /cycles/current").
		HandlerFunc(restutil.WrapHandlerFunc(v.handleGetCurrent))
	sub.Path("/{cycle}").
		Methods(http.MethodGet).
		Name("GET /cycles/{cycle}").
		HandlerFunc(restutil.WrapHandlerFunc(v.handleGetCycle))
	sub.Path("/{cycle}/candidates").
		Methods(http.MethodGet).
		Name("GET /cycles/{cycle}/candidates").
		HandlerFunc(restutil.WrapHandlerFunc(v.handleGetActive))
	sub.Path("/{cycle}/candidates/{candidate}").
		Methods(http.MethodGet).
		Name("GET /cycles/{cycle}/candidates/{candidate}").
		HandlerFunc(restutil.WrapHandlerFunc(v.handleGetCandidateVotes))
	sub.Path("/{cycle}/users/{address}").
		Methods(http.MethodGet).
		Name("GET /cycles/{cycle}/users/{address}").
		HandlerFunc(restutil.WrapHandlerFunc(v.handleGetUserVotes))
}

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func convertRevert(err error) error {
	if !reverts.IsRevertErr(err) {
		return err
	}
	return restutil.BadRequest(err)
}
