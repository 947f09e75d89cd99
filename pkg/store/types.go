package store

import (
	"entitydb/pkg/entity"
	"entitydb/pkg/types"

	"github.com/google/uuid"
)

type Operation uint8

const (
	AddOp Operation = iota
	SetOp
	SetAllOp
	UpsertOp
	UpdateOp
	RemoveOp
	RemoveWhereOp
	RemoveAllOp
	MapOp
	MapOneOp
)

var opNames = [...]string{
	AddOp:         "add",
	SetOp:         "set",
	SetAllOp:      "set_all",
	UpsertOp:      "upsert",
	UpdateOp:      "update",
	RemoveOp:      "remove",
	RemoveWhereOp: "remove_where",
	RemoveAllOp:   "remove_all",
	MapOp:         "map",
	MapOneOp:      "map_one",
}

func (o Operation) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "unknown"
}

func (o Operation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result describes the outcome of one write.
type Result struct {
	Mutation entity.Mutation      `json:"mutation"`
	Seq      types.SequenceNumber `json:"seq"`
	Total    int                  `json:"total"`
}

// Change is published to watchers for every write that produced a new
// snapshot.
type Change struct {
	ID         uuid.UUID            `json:"id"`
	Collection string               `json:"collection"`
	Op         Operation            `json:"op"`
	Mutation   entity.Mutation      `json:"mutation"`
	Seq        types.SequenceNumber `json:"seq"`
	Total      int                  `json:"total"`
}
