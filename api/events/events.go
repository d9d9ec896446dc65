// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package events

import (
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/ipfsnut/evermark-contracts/api/restutil"
	"github.com/ipfsnut/evermark-contracts/evermark"
	"github.com/ipfsnut/evermark-contracts/logdb"
)

type Events struct {
	db    *logdb.LogDB
	limit uint64
}

func New(db *logdb.LogDB, logsLimit uint64) *Events {
	return &Events{
		db,
		logsLimit,
	}
}

// Filter is the JSON request body of an event query.
type Filter struct {
	Kind     logdb.Kind        `json:"kind,omitempty"`
	User     *evermark.Address `json:"user,omitempty"`
	FromTime uint64            `json:"fromTime,omitempty"`
	ToTime   uint64            `json:"toTime,omitempty"`
	Offset   uint64            `json:"offset,omitempty"`
	Limit    uint64            `json:"limit,omitempty"`
}

// FilteredEvent is the JSON shape of one protocol event.
type FilteredEvent struct {
	Seq       uint64                `json:"seq"`
	Time      uint64                `json:"time"`
	Kind      logdb.Kind            `json:"kind"`
	User      evermark.Address      `json:"user"`
	Candidate uint64                `json:"candidate,omitempty"`
	Cycle     uint64                `json:"cycle,omitempty"`
	Week      uint64                `json:"week,omitempty"`
	Amount    *math.HexOrDecimal256 `json:"amount,string,omitempty"`
	Detail    string                `json:"detail,omitempty"`
}

func convertEvent(ev *logdb.Event) *FilteredEvent {
	fe := &FilteredEvent{
		Seq:       ev.Seq,
		Time:      ev.Time,
		Kind:      ev.Kind,
		User:      ev.User,
		Candidate: ev.Candidate,
		Cycle:     ev.Cycle,
		Week:      ev.Week,
		Detail:    ev.Detail,
	}
	if ev.Amount != nil {
		amount := math.HexOrDecimal256(*ev.Amount)
		fe.Amount = &amount
	}
	return fe
}

func (e *Events) handleFilter(w http.ResponseWriter, req *http.Request) error {
	var filter Filter
	if err := restutil.ParseJSON(req.Body, &filter); err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "body"))
	}
	if filter.Limit > e.limit {
		return restutil.Forbidden(fmt.Errorf("limit exceeds the maximum allowed value of %d", e.limit))
	}
	if filter.ToTime != 0 && filter.FromTime > filter.ToTime {
		return restutil.BadRequest(fmt.Errorf("toTime must be greater than or equal to fromTime"))
	}
	if filter.Limit == 0 {
		filter.Limit = e.limit
	}

	found, err := e.db.FilterEvents(req.Context(), &logdb.EventFilter{
		Kind:     filter.Kind,
		User:     filter.User,
		FromTime: filter.FromTime,
		ToTime:   filter.ToTime,
		Offset:   filter.Offset,
		Limit:    filter.Limit,
	})
	if err != nil {
		return err
	}

	fes := make([]*FilteredEvent, len(found))
	for i, ev := range found {
		fes[i] = convertEvent(ev)
	}
	return restutil.WriteJSON(w, fes)
}

func (e *Events) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").
		Methods(http.MethodPost).
		Name("POST /events").
		HandlerFunc(restutil.WrapHandlerFunc(e.handleFilter))
}
