package couchbase

import "fmt"

// ErrorKind classifies why a store operation failed.
type ErrorKind int

const (
	// KindNone means the operation did not fail.
	KindNone ErrorKind = iota
	// KindNotInitialized means the client had no live cluster connection.
	KindNotInitialized
	// KindDocumentExists means Add found the key already present.
	KindDocumentExists
	// KindDocumentNotFound means the requested document does not exist.
	KindDocumentNotFound
	// KindMalformedInput means a payload was rejected because it is not valid JSON.
	KindMalformedInput
	// KindQueryIndexFailure means the query service reported an index problem.
	KindQueryIndexFailure
	// KindStore covers all other errors reported by the cluster.
	KindStore
	// KindOperationPanic means a panic was caught while executing the operation.
	KindOperationPanic
)

// String returns the kind as a stable snake_case label, suitable for logs and
// metric values.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotInitialized:
		return "not_initialized"
	case KindDocumentExists:
		return "document_exists"
	case KindDocumentNotFound:
		return "document_not_found"
	case KindMalformedInput:
		return "malformed_input"
	case KindQueryIndexFailure:
		return "query_index_failure"
	case KindStore:
		return "store_error"
	case KindOperationPanic:
		return "operation_panic"
	default:
		return "unknown"
	}
}

// Error describes a failed store operation. Code carries the raw status code
// reported by the cluster when one was available, zero otherwise.
type Error struct {
	Kind    ErrorKind
	Code    uint32
	Message string

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (code %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying SDK error, if any, so callers can keep using
// errors.Is and errors.As against the sentinel errors exported by gocb.
func (e *Error) Unwrap() error {
	return e.cause
}

// Response carries the outcome of a single document operation. Content holds
// the document payload for reads and is empty for writes and removals. Err is
// nil exactly when Success is true.
type Response struct {
	Success bool
	Content string
	Err     *Error
}

// QueryResponse carries the outcome of a N1QL query. Rows holds one JSON
// string per result row, in the order the query service returned them. Err is
// nil exactly when Success is true.
type QueryResponse struct {
	Success bool
	Rows    []string
	Err     *Error
}

func okResponse(content string) Response {
	return Response{Success: true, Content: content}
}

func failResponse(err *Error) Response {
	return Response{Err: err}
}

func okQueryResponse(rows []string) QueryResponse {
	return QueryResponse{Success: true, Rows: rows}
}

func failQueryResponse(err *Error) QueryResponse {
	return QueryResponse{Err: err}
}
