package couchbase

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/docstore/internal/metrics"
)

// execute runs one document operation with panic containment and records the
// outcome. A panic inside the SDK or a transcoder surfaces as a failed
// response instead of unwinding into the caller.
func (c *Client) execute(op string, ks Keyspace, key string, fn func() (string, *Error)) (resp Response) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			resp = failResponse(panicError(op, rec))
		}
		observe(op, ks.String(), key, resp.Err, time.Since(start))
	}()

	if !c.initialized {
		return failResponse(notInitializedError())
	}
	content, storeErr := fn()
	if storeErr != nil {
		return failResponse(storeErr)
	}
	return okResponse(content)
}

// observe emits the log line and metrics for a finished document operation.
func observe(op, keyspace, key string, storeErr *Error, d time.Duration) {
	status := "success"
	if storeErr != nil {
		status = storeErr.Kind.String()
	}
	metrics.RecordCouchbaseOperation(op, status)
	metrics.RecordCouchbaseOperationDuration(op, d)

	if storeErr != nil {
		log.Warn().
			Str("operation", op).
			Str("keyspace", keyspace).
			Str("key", key).
			Uint32("code", storeErr.Code).
			Err(storeErr).
			Dur("duration", d).
			Msg("Couchbase operation failed")
		return
	}
	log.Debug().
		Str("operation", op).
		Str("keyspace", keyspace).
		Str("key", key).
		Dur("duration", d).
		Msg("Couchbase operation completed")
}

// Add stores value under key, failing with KindDocumentExists when the key
// is already present. The value must be a valid JSON document.
func (c *Client) Add(key, value string, ks Keyspace) Response {
	return c.execute(opAdd, ks, key, func() (string, *Error) {
		if !json.Valid([]byte(value)) {
			return "", malformedInputError("value is not valid JSON")
		}
		_, err := c.collection(ks).Insert(key, []byte(value), &gocb.InsertOptions{
			Transcoder: gocb.NewRawJSONTranscoder(),
		})
		if err != nil {
			return "", translateError(err)
		}
		return "", nil
	})
}

// Upsert stores value under key, replacing any existing document. The value
// must be a valid JSON document.
func (c *Client) Upsert(key, value string, ks Keyspace) Response {
	return c.execute(opUpsert, ks, key, func() (string, *Error) {
		if !json.Valid([]byte(value)) {
			return "", malformedInputError("value is not valid JSON")
		}
		_, err := c.collection(ks).Upsert(key, []byte(value), &gocb.UpsertOptions{
			Transcoder: gocb.NewRawJSONTranscoder(),
		})
		if err != nil {
			return "", translateError(err)
		}
		return "", nil
	})
}

// Get fetches the document stored under key. On success Content holds the
// document payload exactly as stored.
func (c *Client) Get(key string, ks Keyspace) Response {
	return c.execute(opGet, ks, key, func() (string, *Error) {
		res, err := c.collection(ks).Get(key, &gocb.GetOptions{
			Transcoder: gocb.NewRawJSONTranscoder(),
		})
		if err != nil {
			return "", translateError(err)
		}
		var raw []byte
		if err := res.Content(&raw); err != nil {
			return "", malformedInputError(fmt.Sprintf("document content is not JSON: %v", err))
		}
		return string(raw), nil
	})
}

// Exists reports whether a document is stored under key without fetching it.
// On success Content holds "true" or "false".
func (c *Client) Exists(key string, ks Keyspace) Response {
	return c.execute(opExists, ks, key, func() (string, *Error) {
		res, err := c.collection(ks).Exists(key, nil)
		if err != nil {
			return "", translateError(err)
		}
		return strconv.FormatBool(res.Exists()), nil
	})
}

// Remove deletes the document stored under key, failing with
// KindDocumentNotFound when there is none.
func (c *Client) Remove(key string, ks Keyspace) Response {
	return c.execute(opRemove, ks, key, func() (string, *Error) {
		if _, err := c.collection(ks).Remove(key, nil); err != nil {
			return "", translateError(err)
		}
		return "", nil
	})
}
