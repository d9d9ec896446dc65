// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package stakes

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/ipfsnut/evermark-contracts/api/restutil"
	"github.com/ipfsnut/evermark-contracts/evermark"
	"github.com/ipfsnut/evermark-contracts/runtime"
)

type Stakes struct {
	rt *runtime.Runtime
}

func New(rt *runtime.Runtime) *Stakes {
	return &Stakes{rt}
}

// Account is the JSON shape of one staking position.
type Account struct {
	User      evermark.Address      `json:"user"`
	Balance   *math.HexOrDecimal256 `json:"balance,string"`
	Staked    *math.HexOrDecimal256 `json:"staked,string"`
	Delegated *math.HexOrDecimal256 `json:"delegated,string"`
	Available *math.HexOrDecimal256 `json:"available,string"`
}

func (s *Stakes) handleGetAccount(w http.ResponseWriter, req *http.Request) error {
	user, err := evermark.ParseAddress(mux.Vars(req)["address"])
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "address"))
	}

	c := s.rt.Contracts()
	balance, err := c.Token.BalanceOf(*user)
	if err != nil {
		return err
	}
	staked, err := c.StakeLedger.TotalPower(*user)
	if err != nil {
		return err
	}
	delegated, err := c.StakeLedger.DelegatedPower(*user)
	if err != nil {
		return err
	}
	available, err := c.StakeLedger.AvailablePower(*user)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, &Account{
		User:      *user,
		Balance:   decimal(balance),
		Staked:    decimal(staked),
		Delegated: decimal(delegated),
		Available: decimal(available),
	})
}

func (s *Stakes) handleGetTotal(w http.ResponseWriter, req *http.Request) error {
	total, err := s.rt.Contracts().StakeLedger.TotalStaked()
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, restutil.M{"totalStaked": decimal(total)})
}

func (s *Stakes) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/total").
		Methods(http.MethodGet).
		Name("GET /stakes/total").
		HandlerFunc(restutil.WrapHandlerFunc(s.handleGetTotal))
	sub.Path("/{address}").
		Methods(http.MethodGet).
		Name("GET /stakes/{address}").
		HandlerFunc(restutil.WrapHandlerFunc(s.handleGetAccount))
}

func decimal(v *big.Int) *math.HexOrDecimal256 {
	if v == nil {
		return nil
	}
	out := math.HexOrDecimal256(*v)
	return &out
}
