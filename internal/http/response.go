package http

import (
	"entitydb/pkg/entity"
	"entitydb/pkg/store"
	"entitydb/pkg/types"
)

type Status string

const (
	// StatusOK is used for health-check responses.
	StatusOK Status = "OK"

	// StatusSuccess indicates an operation completed successfully.
	StatusSuccess Status = "success"

	// StatusError indicates an operation failed.
	StatusError Status = "error"
)

// Response represents the standard API response format.
type Response struct {
	Status   Status               `json:"status,omitempty"`
	Value    any                  `json:"value,omitempty"`
	Error    string               `json:"error,omitempty"`
	Mutation *entity.Mutation     `json:"mutation,omitempty"`
	Seq      types.SequenceNumber `json:"seq,omitempty"`
	Total    *int                 `json:"total,omitempty"`
}

func NewOKResponse() Response {
	return Response{Status: StatusOK}
}

func NewSuccessResponse() Response {
	return Response{Status: StatusSuccess}
}

func NewValueResponse(value any) Response {
	return Response{Status: StatusSuccess, Value: value}
}

// NewWriteResponse reports the outcome of a write.
func NewWriteResponse(res store.Result) Response {
	return Response{
		Status:   StatusSuccess,
		Mutation: &res.Mutation,
		Seq:      res.Seq,
		Total:    &res.Total,
	}
}

func NewErrorResponse(err string) Response {
	return Response{Status: StatusError, Error: err}
}
