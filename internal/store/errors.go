package store

import "errors"

type ErrorCode string

const (
	ErrorCodeUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	ErrorCodeQuery       ErrorCode = "QUERY_FAILED"
)

// StoreError classifies failures of the summary data source.
type StoreError struct {
	Code ErrorCode
	Msg  string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *StoreError) Unwrap() error { return e.Err }

func newUnavailableError(msg string, err error) error {
	return &StoreError{Code: ErrorCodeUnavailable, Msg: msg, Err: err}
}

func newQueryError(msg string, err error) error {
	return &StoreError{Code: ErrorCodeQuery, Msg: msg, Err: err}
}

// IsUnavailable reports whether err means the data source could not be reached.
func IsUnavailable(err error) bool {
	return hasCode(err, ErrorCodeUnavailable)
}

// IsQueryError reports whether err came from running a query on an open connection.
func IsQueryError(err error) bool {
	return hasCode(err, ErrorCodeQuery)
}

func hasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var se *StoreError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == code
}
