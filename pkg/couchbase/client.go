// Package couchbase wraps the official Couchbase Go SDK behind a small
// client for JSON document CRUD and N1QL queries. Operations return response
// values instead of bare errors, so callers can branch on the outcome without
// unwrapping SDK error types, and no operation ever panics into the caller.
package couchbase

import (
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/docstore/internal/metrics"
)

// Operation labels used for logs and metrics.
const (
	opInitialize = "initialize"
	opAdd        = "add"
	opUpsert     = "upsert"
	opGet        = "get"
	opExists     = "exists"
	opRemove     = "remove"
	opQuery      = "query"
	opPipeline   = "pipeline"
)

// Default connection timeouts, applied when ConnectOptions leaves a field at
// zero.
const (
	defaultConnectTimeout    = 30 * time.Second
	defaultKVTimeout         = 5 * time.Second
	defaultQueryTimeout      = 30 * time.Second
	defaultManagementTimeout = 30 * time.Second
)

// ConnectOptions tunes the cluster connection built by InitializeWithOptions.
// Zero fields fall back to the package defaults.
type ConnectOptions struct {
	ConnectTimeout    time.Duration
	KVTimeout         time.Duration
	QueryTimeout      time.Duration
	ManagementTimeout time.Duration
}

func (o *ConnectOptions) withDefaults() ConnectOptions {
	resolved := ConnectOptions{
		ConnectTimeout:    defaultConnectTimeout,
		KVTimeout:         defaultKVTimeout,
		QueryTimeout:      defaultQueryTimeout,
		ManagementTimeout: defaultManagementTimeout,
	}
	if o == nil {
		return resolved
	}
	if o.ConnectTimeout > 0 {
		resolved.ConnectTimeout = o.ConnectTimeout
	}
	if o.KVTimeout > 0 {
		resolved.KVTimeout = o.KVTimeout
	}
	if o.QueryTimeout > 0 {
		resolved.QueryTimeout = o.QueryTimeout
	}
	if o.ManagementTimeout > 0 {
		resolved.ManagementTimeout = o.ManagementTimeout
	}
	return resolved
}

// Client is a thin facade over a Couchbase cluster connection. A single
// Client may be shared by any number of goroutines; the underlying SDK
// handles are safe for concurrent use. Initialize and Close are the only
// methods that mutate the Client and must not run concurrently with other
// operations.
type Client struct {
	cluster     *gocb.Cluster
	initialized bool
}

// New returns a client with no cluster connection. Every operation on it
// fails with KindNotInitialized until Initialize succeeds.
func New() *Client {
	return &Client{}
}

// Initialized reports whether the client holds a live cluster connection.
func (c *Client) Initialized() bool {
	return c.initialized
}

// Initialize connects to the cluster with default timeouts.
func (c *Client) Initialize(connectionString, username, password string) error {
	return c.InitializeWithOptions(connectionString, username, password, nil)
}

// InitializeWithOptions connects and authenticates to the cluster and blocks
// until it is ready to serve requests. On success the client is usable until
// Close; calling it on an already initialized client replaces the previous
// connection without closing it.
func (c *Client) InitializeWithOptions(connectionString, username, password string, opts *ConnectOptions) (err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic during initialize: %v", rec)
		}
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.RecordCouchbaseOperation(opInitialize, status)
		metrics.RecordCouchbaseOperationDuration(opInitialize, time.Since(start))
	}()

	resolved := opts.withDefaults()
	cluster, err := gocb.Connect(connectionString, gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: username,
			Password: password,
		},
		TimeoutsConfig: gocb.TimeoutsConfig{
			ConnectTimeout:    resolved.ConnectTimeout,
			KVTimeout:         resolved.KVTimeout,
			QueryTimeout:      resolved.QueryTimeout,
			ManagementTimeout: resolved.ManagementTimeout,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to couchbase: %w", err)
	}
	if err := cluster.WaitUntilReady(resolved.ConnectTimeout, nil); err != nil {
		_ = cluster.Close(nil)
		return fmt.Errorf("couchbase cluster not ready: %w", err)
	}

	c.cluster = cluster
	c.initialized = true
	log.Info().
		Str("url", connectionString).
		Dur("duration", time.Since(start)).
		Msg("Couchbase connection initialized successfully")
	return nil
}

// WaitUntilReady blocks until the named bucket can serve key-value and query
// traffic, or the timeout expires. Useful right after bucket creation, when
// the cluster reports ready before every bucket does.
func (c *Client) WaitUntilReady(bucket string, timeout time.Duration) error {
	if !c.initialized {
		return notInitializedError()
	}
	err := c.cluster.Bucket(bucket).WaitUntilReady(timeout, &gocb.WaitUntilReadyOptions{
		ServiceTypes: []gocb.ServiceType{gocb.ServiceTypeKeyValue, gocb.ServiceTypeQuery},
	})
	if err != nil {
		return fmt.Errorf("bucket %q not ready: %w", bucket, err)
	}
	return nil
}

// Close shuts down the cluster connection and returns the client to its
// uninitialized state. Closing an uninitialized client is a no-op.
func (c *Client) Close() error {
	if !c.initialized {
		return nil
	}
	err := c.cluster.Close(nil)
	c.cluster = nil
	c.initialized = false
	if err != nil {
		return fmt.Errorf("failed to close couchbase connection: %w", err)
	}
	log.Info().Msg("Couchbase connection closed")
	return nil
}

// collection resolves a keyspace to a collection handle. Handles are cheap;
// the SDK caches the underlying bucket resources.
func (c *Client) collection(ks Keyspace) *gocb.Collection {
	ks = ks.withDefaults()
	return c.cluster.Bucket(ks.Bucket).Scope(ks.Scope).Collection(ks.Collection)
}
