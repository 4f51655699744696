package couchbase

import (
	"errors"
	"fmt"

	"github.com/couchbase/gocb/v2"
)

// translateError maps an SDK error onto the facade error taxonomy, keeping
// the original error reachable through Unwrap.
func translateError(err error) *Error {
	kind := KindStore
	switch {
	case errors.Is(err, gocb.ErrDocumentExists):
		kind = KindDocumentExists
	case errors.Is(err, gocb.ErrDocumentNotFound):
		kind = KindDocumentNotFound
	case errors.Is(err, gocb.ErrIndexFailure),
		errors.Is(err, gocb.ErrIndexNotFound),
		errors.Is(err, gocb.ErrIndexExists):
		kind = KindQueryIndexFailure
	}
	return &Error{Kind: kind, Code: errorCode(err), Message: errorMessage(err), cause: err}
}

// errorCode pulls the raw status code out of typed SDK errors. Query errors
// carry the code of the first reported query problem, key-value errors the
// memcached status code.
func errorCode(err error) uint32 {
	var queryErr *gocb.QueryError
	if errors.As(err, &queryErr) && len(queryErr.Errors) > 0 {
		return queryErr.Errors[0].Code
	}
	var kvErr *gocb.KeyValueError
	if errors.As(err, &kvErr) {
		return uint32(kvErr.StatusCode)
	}
	return 0
}

// errorMessage prefers the short server-side description over the verbose
// context dump the SDK error types render from Error().
func errorMessage(err error) string {
	var queryErr *gocb.QueryError
	if errors.As(err, &queryErr) && len(queryErr.Errors) > 0 {
		return queryErr.Errors[0].Message
	}
	var kvErr *gocb.KeyValueError
	if errors.As(err, &kvErr) {
		if kvErr.ErrorDescription != "" {
			return kvErr.ErrorDescription
		}
		if kvErr.InnerError != nil {
			return kvErr.InnerError.Error()
		}
	}
	return err.Error()
}

func notInitializedError() *Error {
	return &Error{Kind: KindNotInitialized, Message: "couchbase client is not initialized"}
}

func malformedInputError(msg string) *Error {
	return &Error{Kind: KindMalformedInput, Message: msg}
}

func panicError(op string, recovered interface{}) *Error {
	return &Error{Kind: KindOperationPanic, Message: fmt.Sprintf("panic during %s: %v", op, recovered)}
}
