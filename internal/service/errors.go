package service

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/errs"
)

// connectError maps ledger errors onto Connect status codes.
func connectError(err error) error {
	var (
		verr *errs.ValidationError
		cerr *errs.ConsistencyError
	)
	switch {
	case errors.As(err, &verr):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.As(err, &cerr):
		return connect.NewError(connect.CodeInternal, err)
	case errors.Is(err, errs.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, errs.ErrConflict), errors.Is(err, errs.ErrParticipantInUse):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
