package couchbase

import (
	"encoding/json"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/docstore/internal/metrics"
)

// QueryScope names the bucket and scope a query runs against, so statements
// can reference collections by their bare names. A nil *QueryScope runs the
// statement cluster-wide. An empty Scope means the bucket's default scope.
type QueryScope struct {
	Bucket string
	Scope  string
}

// String renders the scope as a bucket.scope path.
func (s *QueryScope) String() string {
	if s == nil {
		return "cluster"
	}
	scope := s.Scope
	if scope == "" {
		scope = DefaultScopeName
	}
	return s.Bucket + "." + scope
}

// QueryConsistency selects the scan consistency level for a query.
type QueryConsistency int

const (
	// ConsistencyDefault defers to the SDK default.
	ConsistencyDefault QueryConsistency = iota
	// ConsistencyNotBounded executes against the current index state without
	// waiting for in-flight mutations.
	ConsistencyNotBounded
	// ConsistencyRequestPlus waits for the indexer to catch up with all
	// mutations issued before the query.
	ConsistencyRequestPlus
)

// QueryOptions tunes a single query execution. The zero value is a sensible
// default for ad-hoc statements; a nil *QueryOptions behaves the same.
type QueryOptions struct {
	// Timeout bounds the whole query, zero meaning the client's query timeout.
	Timeout time.Duration
	// Consistency is ignored when ConsistentWith is set.
	Consistency QueryConsistency
	// ConsistentWith makes the query wait for the given mutations to be
	// indexed before executing.
	ConsistentWith *gocb.MutationState
	// PositionalParameters bind to $1, $2, ... placeholders in the statement.
	PositionalParameters []interface{}
	// NamedParameters bind to $name placeholders in the statement.
	NamedParameters map[string]interface{}
	// Adhoc disables prepared-statement optimization for this statement.
	Adhoc bool
	// Profile asks the query service to include phase profiling in its
	// response metadata.
	Profile bool
	// Metrics asks the query service to include execution metrics in its
	// response metadata.
	Metrics bool
	// ClientContextID tags the query in cluster-side logs and system tables.
	ClientContextID string
}

// buildQueryOptions translates facade query options into SDK options.
func buildQueryOptions(o *QueryOptions) *gocb.QueryOptions {
	gopts := &gocb.QueryOptions{}
	if o == nil {
		return gopts
	}
	gopts.Timeout = o.Timeout
	gopts.Adhoc = o.Adhoc
	gopts.Metrics = o.Metrics
	gopts.ClientContextID = o.ClientContextID
	gopts.PositionalParameters = o.PositionalParameters
	gopts.NamedParameters = o.NamedParameters
	if o.Profile {
		gopts.Profile = gocb.QueryProfileModePhases
	}
	// The SDK rejects requests that set both a consistency level and a
	// mutation state, so only one of the two is forwarded.
	if o.ConsistentWith != nil {
		gopts.ConsistentWith = o.ConsistentWith
		return gopts
	}
	switch o.Consistency {
	case ConsistencyNotBounded:
		gopts.ScanConsistency = gocb.QueryScanConsistencyNotBounded
	case ConsistencyRequestPlus:
		gopts.ScanConsistency = gocb.QueryScanConsistencyRequestPlus
	}
	return gopts
}

// Query executes a N1QL statement and drains the result stream. A nil scope
// runs the statement cluster-wide; a nil opts uses default query options.
// Rows come back verbatim as the query service returned them, in order.
func (c *Client) Query(statement string, scope *QueryScope, opts *QueryOptions) QueryResponse {
	return c.executeQuery(statement, scope, func() ([]string, *Error) {
		var result *gocb.QueryResult
		var err error
		if scope == nil {
			result, err = c.cluster.Query(statement, buildQueryOptions(opts))
		} else {
			scopeName := scope.Scope
			if scopeName == "" {
				scopeName = DefaultScopeName
			}
			result, err = c.cluster.Bucket(scope.Bucket).Scope(scopeName).Query(statement, buildQueryOptions(opts))
		}
		if err != nil {
			return nil, translateError(err)
		}
		return collectRows(result)
	})
}

// executeQuery is the query counterpart of execute: panic containment plus
// log and metric emission around the SDK call.
func (c *Client) executeQuery(statement string, scope *QueryScope, fn func() ([]string, *Error)) (resp QueryResponse) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			resp = failQueryResponse(panicError(opQuery, rec))
		}
		observeQuery(statement, scope.String(), resp, time.Since(start))
	}()

	if !c.initialized {
		return failQueryResponse(notInitializedError())
	}
	rows, storeErr := fn()
	if storeErr != nil {
		return failQueryResponse(storeErr)
	}
	return okQueryResponse(rows)
}

// observeQuery emits the log line and metrics for a finished query.
func observeQuery(statement, scope string, resp QueryResponse, d time.Duration) {
	status := "success"
	if resp.Err != nil {
		status = resp.Err.Kind.String()
	}
	metrics.RecordCouchbaseOperation(opQuery, status)
	metrics.RecordCouchbaseOperationDuration(opQuery, d)

	if resp.Err != nil {
		log.Warn().
			Str("operation", opQuery).
			Str("scope", scope).
			Str("statement", statement).
			Uint32("code", resp.Err.Code).
			Err(resp.Err).
			Dur("duration", d).
			Msg("Query failed")
		return
	}
	log.Debug().
		Str("operation", opQuery).
		Str("scope", scope).
		Str("statement", statement).
		Int("rows", len(resp.Rows)).
		Dur("duration", d).
		Msg("Query completed")
}

// collectRows drains and closes the result stream, passing each row through
// without re-encoding.
func collectRows(result *gocb.QueryResult) ([]string, *Error) {
	defer result.Close()
	var rows []string
	for result.Next() {
		var row json.RawMessage
		if err := result.Row(&row); err != nil {
			return nil, translateError(err)
		}
		rows = append(rows, string(row))
	}
	if err := result.Err(); err != nil {
		return nil, translateError(err)
	}
	return rows, nil
}
