// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package rewards

import (
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/ipfsnut/evermark-contracts/api/restutil"
	"github.com/ipfsnut/evermark-contracts/evermark"
	"github.com/ipfsnut/evermark-contracts/runtime"
)

type Rewards struct {
	rt *runtime.Runtime
}

func New(rt *runtime.Runtime) *Rewards {
	return &Rewards{rt}
}

// Week is the JSON shape of one reward week.
type Week struct {
	WeekID       uint64                `json:"weekId"`
	StartTime    uint64                `json:"startTime"`
	EndTime      uint64                `json:"endTime"`
	TotalPool    *math.HexOrDecimal256 `json:"totalPool,string"`
	StakerPool   *math.HexOrDecimal256 `json:"stakerPool,string"`
	CreatorPool  *math.HexOrDecimal256 `json:"creatorPool,string"`
	BasePool     *math.HexOrDecimal256 `json:"basePool,string"`
	VariablePool *math.HexOrDecimal256 `json:"variablePool,string"`
	Finalized    bool                  `json:"finalized"`
	Distributed  bool                  `json:"distributed"`
	CreatorPaid  bool                  `json:"creatorPaid"`
}

// Share is the JSON shape of a user's snapshot for a week.
type Share struct {
	WeekID   uint64                `json:"weekId"`
	User     evermark.Address      `json:"user"`
	Base     *math.HexOrDecimal256 `json:"base,string"`
	Variable *math.HexOrDecimal256 `json:"variable,string"`
	Computed bool                  `json:"computed"`
	Claimed  bool                  `json:"claimed"`
}

func (r *Rewards) handleGetCurrentWeek(w http.ResponseWriter, req *http.Request) error {
	weekID, err := r.rt.Contracts().Rewards.CurrentWeekID()
	if err != nil {
		return err
	}
	if weekID == 0 {
		return restutil.NotFound(errors.New("no week opened yet"))
	}
	return r.writeWeek(w, weekID)
}

func (r *Rewards) handleGetWeek(w http.ResponseWriter, req *http.Request) error {
	weekID, err := parseUint(mux.Vars(req)["week"])
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "week"))
	}
	return r.writeWeek(w, weekID)
}

func (r *Rewards) writeWeek(w http.ResponseWriter, weekID uint64) error {
	week, err := r.rt.Contracts().Rewards.GetWeek(weekID)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, &Week{
		WeekID:       weekID,
		StartTime:    week.StartTime,
		EndTime:      week.EndTime,
		TotalPool:    decimal(week.TotalPool),
		StakerPool:   decimal(week.StakerPool),
		CreatorPool:  decimal(week.CreatorPool),
		BasePool:     decimal(week.BasePool),
		VariablePool: decimal(week.VariablePool),
		Finalized:    week.Finalized,
		Distributed:  week.Distributed,
		CreatorPaid:  week.CreatorPaid,
	})
}

func (r *Rewards) handleGetShare(w http.ResponseWriter, req *http.Request) error {
	vars := mux.Vars(req)
	weekID, err := parseUint(vars["week"])
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "week"))
	}
	user, err := evermark.ParseAddress(vars["address"])
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "address"))
	}

	accountant := r.rt.Contracts().Rewards
	share, err := accountant.GetShare(*user, weekID)
	if err != nil {
		return err
	}
	claimed, err := accountant.Claimed(*user, weekID)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, &Share{
		WeekID:   weekID,
		User:     *user,
		Base:     decimal(share.Base),
		Variable: decimal(share.Variable),
		Computed: share.Computed,
		Claimed:  claimed,
	})
}

func (r *Rewards) handleGetPending(w http.ResponseWriter, req *http.Request) error {
	user, err := evermark.ParseAddress(mux.Vars(req)["address"])
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "address"))
	}
	pending, err := r.rt.Contracts().Rewards.PendingCreatorReward(*user)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, restutil.M{"user": user, "pendingCreatorReward": decimal(pending)})
}

func (r *Rewards) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/weeks/current").
		Methods(http.MethodGet).
		Name("GET /rewards/weeks/current").
		HandlerFunc(restutil.WrapHandlerFunc(r.handleGetCurrentWeek))
	sub.Path("/weeks/{week}").
		Methods(http.MethodGet).
		Name("GET /rewards/weeks/{week}").
		HandlerFunc(restutil.WrapHandlerFunc(r.handleGetWeek))
	sub.Path("/weeks/{week}/shares/{address}").
		Methods(http.MethodGet).
		Name("GET /rewards/weeks/{week}/shares/{address}").
		HandlerFunc(restutil.WrapHandlerFunc(r.handleGetShare))
	sub.Path("/pending/{address}").
		Methods(http.MethodGet).
		Name("GET /rewards/pending/{address}").
		HandlerFunc(restutil.WrapHandlerFunc(r.handleGetPending))
}

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func decimal(v *big.Int) *math.HexOrDecimal256 {
	if v == nil {
		return nil
	}
	out := math.HexOrDecimal256(*v)
	return &out
}
