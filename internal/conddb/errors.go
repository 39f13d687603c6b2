package conddb

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a class of conditions database failure.
type ErrorCode string

const (
	// ErrCodeBadConfig indicates a table that is not usable as configured.
	ErrCodeBadConfig ErrorCode = "BAD_CONFIG"

	// ErrCodeNoSuchTable indicates introspection found no such table.
	ErrCodeNoSuchTable ErrorCode = "NO_SUCH_TABLE"

	// ErrCodeDBConnect indicates every configured host refused a connection.
	ErrCodeDBConnect ErrorCode = "DB_CONNECT"

	// ErrCodeWebError indicates a failed web service request.
	ErrCodeWebError ErrorCode = "WEB_ERROR"

	// ErrCodeBadCast indicates text that cannot be read as the column type.
	ErrCodeBadCast ErrorCode = "BAD_CAST"

	// ErrCodeNullInNonNull indicates an unset value in a non-nullable column.
	ErrCodeNullInNonNull ErrorCode = "NULL_IN_NON_NULL"

	// ErrCodeColumnMismatch indicates a row whose layout differs from the table.
	ErrCodeColumnMismatch ErrorCode = "COLUMN_MISMATCH"
)

// Error is a conditions database failure.
type Error struct {
	Code    ErrorCode
	Table   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Table != "" {
		msg += " " + e.Table
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCode reports whether err carries code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

func newError(code ErrorCode, table string, err error, format string, args ...any) *Error {
	return &Error{Code: code, Table: table, Message: fmt.Sprintf(format, args...), Err: err}
}
