package errors

// NewInternalError returns a new ErrInternal error with the given message and
// details.
func NewInternalError(message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Message: message,
		Details: details,
	}
}

// NewInternalErrorFromErr returns a new ErrInternal error that keeps the given
// error as original one.
func NewInternalErrorFromErr(err error, message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Err:     err,
		Message: message,
		Details: details,
	}
}

// NewResourceNotFoundError returns a new ErrNotFound error with kind
// KindResourceNotFound and the given message.
func NewResourceNotFoundError(message string, details Details) error {
	return Error{
		Code:    ErrNotFound,
		Kind:    KindResourceNotFound,
		Message: message,
		Details: details,
	}
}

// NewBadRequestError returns a new ErrBadRequest error with the given kind and
// message.
func NewBadRequestError(message string, kind Kind, details Details) error {
	return Error{
		Code:    ErrBadRequest,
		Kind:    kind,
		Message: message,
		Details: details,
	}
}

// NewConcurrentModificationError returns a new ErrConcurrentModification error
// with kind KindVersionMismatch. The details should carry the authoritative
// state so that callers do not need another read for it.
func NewConcurrentModificationError(message string, details Details) error {
	return Error{
		Code:    ErrConcurrentModification,
		Kind:    KindVersionMismatch,
		Message: message,
		Details: details,
	}
}

// NewContextAbortedError returns a new ErrAborted error with kind
// KindContextAborted for the given operation.
func NewContextAbortedError(operation string) error {
	return Error{
		Code:    ErrAborted,
		Kind:    KindContextAborted,
		Message: operation,
	}
}

// NewUUIDGenError returns a new ErrInternal error with kind KindUUIDGenFail
// for failed uuid generation.
func NewUUIDGenError(err error) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindUUIDGenFail,
		Err:     err,
		Message: "gen uuid",
	}
}

// NewQueryToSQLError returns a new ErrInternal error with kind KindDB for
// failed SQL generation.
func NewQueryToSQLError(err error, details Details) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: "query to sql",
		Details: details,
	}
}

// NewExecQueryError returns a new ErrInternal error with kind KindDB for
// failed query execution. The query is kept in the error details.
func NewExecQueryError(err error, message string, query string) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: message,
		Details: Details{"query": query},
	}
}

// NewScanDBRowError returns a new ErrInternal error with kind KindDB for
// failed row scanning. The query is kept in the error details.
func NewScanDBRowError(err error, message string, query string) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: message,
		Details: Details{"query": query},
	}
}

// NewScanSingleDBRowError returns a new error like NewScanDBRowError but is
// meant for queries that expect exactly one result row.
func NewScanSingleDBRowError(err error, message string, query string) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: message,
		Details: Details{"query": query},
	}
}

// NewDBTxBeginError returns a new ErrInternal error with kind KindDB for
// failed transaction begin.
func NewDBTxBeginError(err error) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: "begin tx",
	}
}

// NewDBTxCommitError returns a new ErrInternal error with kind KindDB for
// failed transaction commit.
func NewDBTxCommitError(err error) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: "commit tx",
	}
}
