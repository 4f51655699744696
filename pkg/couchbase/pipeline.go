package couchbase

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/docstore/internal/metrics"
)

// Op identifies a document operation queued on a Pipeline.
type Op int

const (
	OpAdd Op = iota
	OpUpsert
	OpGet
	OpRemove
)

// String returns the operation's log and metric label.
func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpUpsert:
		return "upsert"
	case OpGet:
		return "get"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// ErrPipelineInactive is returned when queueing on a pipeline that has been
// executed or cleared and not reset since.
var ErrPipelineInactive = errors.New("pipeline is not active")

type pipelineRequest struct {
	op    Op
	key   string
	value string
	// collection overrides the pipeline keyspace's collection when non-empty.
	collection string
}

// Pipeline batches document operations against a single bucket and runs them
// through the SDK's bulk API, so a burst of small operations costs one round
// of dispatch instead of one blocking call each. A Pipeline is not safe for
// concurrent use; each goroutine should build its own.
type Pipeline struct {
	client *Client
	ks     Keyspace
	reqs   []pipelineRequest
	active bool
}

// NewPipeline returns an active, empty pipeline. Queued operations target ks
// unless a request overrides the collection.
func (c *Client) NewPipeline(ks Keyspace) *Pipeline {
	return &Pipeline{client: c, ks: ks.withDefaults(), active: true}
}

// Queue appends an operation on key to the pipeline. The value is ignored
// for OpGet and OpRemove.
func (p *Pipeline) Queue(op Op, key, value string) error {
	return p.QueueIn(op, key, value, "")
}

// QueueIn is Queue with a per-request collection override.
func (p *Pipeline) QueueIn(op Op, key, value, collection string) error {
	if !p.active {
		return ErrPipelineInactive
	}
	p.reqs = append(p.reqs, pipelineRequest{op: op, key: key, value: value, collection: collection})
	return nil
}

// Len returns the number of queued requests.
func (p *Pipeline) Len() int {
	return len(p.reqs)
}

// Active reports whether the pipeline accepts requests. Execute and Clear
// deactivate the pipeline; Reset reactivates it.
func (p *Pipeline) Active() bool {
	return p.active
}

// Clear drops all queued requests and deactivates the pipeline.
func (p *Pipeline) Clear() {
	p.reqs = nil
	p.active = false
}

// Reset drops all queued requests and makes the pipeline accept new ones.
func (p *Pipeline) Reset() {
	p.reqs = nil
	p.active = true
}

// Execute runs all queued requests and returns one response per request, in
// queue order. Requests that resolve to the same collection run as a single
// bulk batch, and a failed request does not affect the others. Afterwards
// the pipeline is empty and inactive; call Reset to reuse it.
func (p *Pipeline) Execute() (responses []Response) {
	reqs := p.reqs
	p.reqs = nil
	p.active = false

	responses = make([]Response, len(reqs))
	if len(reqs) == 0 {
		return responses
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			perr := panicError(opPipeline, rec)
			for i := range responses {
				if !responses[i].Success && responses[i].Err == nil {
					responses[i] = failResponse(perr)
				}
			}
		}
		failures := 0
		for i := range reqs {
			status := "success"
			if responses[i].Err != nil {
				status = responses[i].Err.Kind.String()
				failures++
			}
			metrics.RecordCouchbaseOperation(reqs[i].op.String(), status)
		}
		metrics.RecordCouchbaseOperationDuration(opPipeline, time.Since(start))
		log.Debug().
			Str("operation", opPipeline).
			Str("keyspace", p.ks.String()).
			Int("requests", len(reqs)).
			Int("failures", failures).
			Dur("duration", time.Since(start)).
			Msg("Pipeline executed")
	}()

	if !p.client.initialized {
		nie := notInitializedError()
		for i := range responses {
			responses[i] = failResponse(nie)
		}
		return responses
	}

	// Group request indices by their effective collection; responses are
	// written back by original index, so output order never depends on
	// group order.
	groups := make(map[string][]int)
	for i, req := range reqs {
		collection := req.collection
		if collection == "" {
			collection = p.ks.Collection
		}
		groups[collection] = append(groups[collection], i)
	}
	for collection, indices := range groups {
		p.runBatch(collection, indices, reqs, responses)
	}
	return responses
}

// runBatch executes the requests at the given indices against one
// collection. Requests are validated locally before anything touches the
// cluster, so a malformed value never costs a dispatch.
func (p *Pipeline) runBatch(collection string, indices []int, reqs []pipelineRequest, responses []Response) {
	ops := make([]gocb.BulkOp, 0, len(indices))
	opIndex := make([]int, 0, len(indices))
	for _, i := range indices {
		req := reqs[i]
		switch req.op {
		case OpAdd:
			if !json.Valid([]byte(req.value)) {
				responses[i] = failResponse(malformedInputError("value is not valid JSON"))
				continue
			}
			ops = append(ops, &gocb.InsertOp{ID: req.key, Value: []byte(req.value)})
		case OpUpsert:
			if !json.Valid([]byte(req.value)) {
				responses[i] = failResponse(malformedInputError("value is not valid JSON"))
				continue
			}
			ops = append(ops, &gocb.UpsertOp{ID: req.key, Value: []byte(req.value)})
		case OpGet:
			ops = append(ops, &gocb.GetOp{ID: req.key})
		case OpRemove:
			ops = append(ops, &gocb.RemoveOp{ID: req.key})
		default:
			responses[i] = failResponse(&Error{Kind: KindStore, Message: fmt.Sprintf("unsupported pipeline operation %d", req.op)})
			continue
		}
		opIndex = append(opIndex, i)
	}
	if len(ops) == 0 {
		return
	}

	ks := p.ks
	ks.Collection = collection
	col := p.client.collection(ks)
	if err := col.Do(ops, &gocb.BulkOpOptions{Transcoder: gocb.NewRawJSONTranscoder()}); err != nil {
		storeErr := translateError(err)
		for _, i := range opIndex {
			responses[i] = failResponse(storeErr)
		}
		return
	}
	for n, op := range ops {
		responses[opIndex[n]] = bulkOpResponse(op)
	}
}

// bulkOpResponse converts one executed bulk op into a facade response.
func bulkOpResponse(op gocb.BulkOp) Response {
	switch typed := op.(type) {
	case *gocb.InsertOp:
		if typed.Err != nil {
			return failResponse(translateError(typed.Err))
		}
		return okResponse("")
	case *gocb.UpsertOp:
		if typed.Err != nil {
			return failResponse(translateError(typed.Err))
		}
		return okResponse("")
	case *gocb.GetOp:
		if typed.Err != nil {
			return failResponse(translateError(typed.Err))
		}
		var raw []byte
		if err := typed.Result.Content(&raw); err != nil {
			return failResponse(malformedInputError(fmt.Sprintf("document content is not JSON: %v", err)))
		}
		return okResponse(string(raw))
	case *gocb.RemoveOp:
		if typed.Err != nil {
			return failResponse(translateError(typed.Err))
		}
		return okResponse("")
	default:
		return failResponse(&Error{Kind: KindStore, Message: "unsupported bulk operation"})
	}
}
