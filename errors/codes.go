package errors

type Code string

const (
	ErrAborted       Code = "aborted"
	ErrBadRequest    Code = "bad-request"
	ErrCommunication Code = "communication"
	// ErrConcurrentModification is used when a versioned resource was changed by
	// someone else between read and write. This is expected during normal
	// operation and carries the authoritative state in Details.
	ErrConcurrentModification Code = "concurrent-modification"
	ErrProtocolViolation      Code = "protocol-violation"
	ErrFatal                  Code = "fatal"
	ErrNotFound               Code = "not-found"
	ErrInternal               Code = "internal"
	ErrSadLife                Code = "sad-life"
	ErrUnexpected             Code = "unexpected"
)

type Kind string

const (
	// KindAssignmentInProgress is used when an assignment for an event is requested
	// although another one for the same event is still being handled.
	KindAssignmentInProgress Kind = "assignment-in-progress"
	// KindConflictCheckFailed is used when the conflict check for an assignment
	// could not be completed and the assignment was aborted.
	KindConflictCheckFailed Kind = "conflict-check-failed"
	// KindContextAborted is used when we were currently performing an operation but
	// the context got aborted.
	KindContextAborted Kind = "context-aborted"
	// KindCountDoesNotMatchExpected is used when a number of entities does not
	// match the expected count.
	KindCountDoesNotMatchExpected Kind = "count-does-not-match-expected"
	KindDB                        Kind = "db"
	KindDBRollback                Kind = "db-rollback"
	KindDecodeJSON                Kind = "parse-request-body-as-json"
	KindEncodeJSON                Kind = "encode-json"
	// KindInvalidAssignmentRequest is used when an assignment request is missing
	// required fields or is otherwise malformed.
	KindInvalidAssignmentRequest Kind = "invalid-assignment-request"
	// KindInvalidConfig is used when the app config is missing required entries or
	// holds values that cannot be used.
	KindInvalidConfig Kind = "invalid-config"
	// KindInvalidEventDetails is used when event details fail validation like an
	// empty title or an end before the start.
	KindInvalidEventDetails Kind = "invalid-event-details"
	// KindInvalidResolutionRequest is used when a conflict resolution request does
	// not describe a resolvable pair.
	KindInvalidResolutionRequest Kind = "invalid-resolution-request"
	// KindInvalidUserDetails is used when user details fail validation like an
	// empty name.
	KindInvalidUserDetails Kind = "invalid-user-details"
	// KindMalformedID is used when a passed ID is not in uuid.UUID format.
	KindMalformedID Kind = "malformed-id"
	// KindMalformedQueryParameter is used when an optional query parameter is set
	// but cannot be parsed.
	KindMalformedQueryParameter Kind = "malformed-query-parameter"
	KindMissingID               Kind = "missing-id"
	// KindMissingQueryParameter is used when a required query parameter is not
	// set.
	KindMissingQueryParameter Kind = "missing-query-parameter"
	// KindNotRunning is used when actions are performed that require a running
	// entity.
	KindNotRunning Kind = "not-running"
	// KindResolutionFailed is used when applying a conflict resolution did not
	// complete and the conflict therefore remains.
	KindResolutionFailed         Kind = "resolution-failed"
	KindResourceNotFound         Kind = "resource-not-found"
	KindRowsAffectedNotSupported Kind = "rows-affected-not-supported"
	KindShouldNotHappen          Kind = "should-not-happen"
	// KindUnknownConfirmationTicket is used when a confirmation or decline refers
	// to a ticket that does not exist or has already expired.
	KindUnknownConfirmationTicket Kind = "unknown-confirmation-ticket"
	// KindUnknownEvent is used when an unknown event is being requested.
	KindUnknownEvent Kind = "unknown-event"
	// KindUnknownUser is used when an unknown user is being requested.
	KindUnknownUser Kind = "unknown-user"
	KindUUIDGenFail Kind = "uuid-gen-fail"
	KindUnexpected  Kind = "unexpected"
	// KindUnknown is used for different unknown type values that are too special
	// for creating separate error kinds.
	KindUnknown Kind = "unknown"
	// KindVersionMismatch is used when an expected resource version does not match
	// the version found in the store.
	KindVersionMismatch Kind = "version-mismatch"
)
