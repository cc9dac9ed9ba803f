package core

import (
	"errors"
	"fmt"
)

var (
	ErrCompanyNotFoundOrInactive = errors.New("company not found or inactive")
	ErrPoolConnectionFailure     = errors.New("pool connection failure")
	ErrManagerClosed             = errors.New("database manager is shut down")
)

// PoolConnectionError is returned when a new pool fails to open or to answer
// its liveness check.
type PoolConnectionError struct {
	CompanyCode string
	Err         error
}

func (e *PoolConnectionError) Error() string {
	return fmt.Sprintf("connect to company %s: %v", e.CompanyCode, e.Err)
}

func (e *PoolConnectionError) Unwrap() error {
	return e.Err
}

func (e *PoolConnectionError) Is(target error) bool {
	return target == ErrPoolConnectionFailure
}
