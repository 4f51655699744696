// Package workload drives the demonstration sequence the example programs
// run against a cluster: document CRUD including the expected failure paths,
// pipeline batches, and the query variants, with per-step timing.
package workload

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/docstore/internal/metrics"
	"stealthcompany.com/docstore/pkg/couchbase"
)

// StepTiming records how one workload step went.
type StepTiming struct {
	Name     string
	Duration time.Duration
	Success  bool
}

// Runner executes the demonstration sequence against one keyspace. Runners
// are single-use; concurrent workers each build their own.
type Runner struct {
	client *couchbase.Client
	ks     couchbase.Keyspace
	count  int
	runID  string

	itemKeys []string
	steps    []StepTiming
}

// NewRunner builds a runner that writes into ks and stores documents item
// documents per pipeline batch.
func NewRunner(client *couchbase.Client, ks couchbase.Keyspace, documents int) *Runner {
	if documents < 1 {
		documents = 1
	}
	return &Runner{
		client: client,
		ks:     ks,
		count:  documents,
		runID:  uuid.NewString()[:8],
	}
}

// Run executes every step in order, recording timing and outcome per step.
// Individual step failures do not stop the sequence; cancellation does.
func (r *Runner) Run(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func() bool
	}{
		{"Add Document", r.addUser},
		{"Add Duplicate", r.addDuplicate},
		{"Upsert Document", r.upsertUser},
		{"Get Document", r.getUser},
		{"Exists Check", r.existsCheck},
		{fmt.Sprintf("Store Items x%d", r.count), r.storeItems},
		{fmt.Sprintf("Pipeline Add x%d", r.count), r.pipelineAdd},
		{"Cluster Query", r.clusterQuery},
		{"Scope Query", r.scopeQuery},
		{"Parameterized Query", r.parameterizedQuery},
		{fmt.Sprintf("Pipeline Remove x%d", r.count), r.pipelineRemove},
		{"Remove Document", r.removeUser},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("workload cancelled: %w", err)
		}
		r.step(step.name, step.fn)
	}
	return nil
}

// step times one unit of work and records its outcome.
func (r *Runner) step(name string, fn func() bool) {
	start := time.Now()
	ok := fn()
	d := time.Since(start)

	r.steps = append(r.steps, StepTiming{Name: name, Duration: d, Success: ok})
	metrics.RecordWorkloadStep(name, ok)

	log.Info().
		Str("step", name).
		Str("keyspace", r.ks.String()).
		Bool("success", ok).
		Dur("duration", d).
		Msg("Workload step finished")
}

// addUser stores the fixed user document; rerunning against a dirty bucket
// reports failure because the final step removes the key again.
func (r *Runner) addUser() bool {
	return r.client.Add(userKey, userDocument, r.ks).Success
}

// addDuplicate succeeds when the second Add is rejected with the
// document-exists kind, which is the behavior this step demonstrates.
func (r *Runner) addDuplicate() bool {
	resp := r.client.Add(userKey, userDocument, r.ks)
	return !resp.Success && resp.Err != nil && resp.Err.Kind == couchbase.KindDocumentExists
}

func (r *Runner) upsertUser() bool {
	return r.client.Upsert(userKey, updatedUserDocument, r.ks).Success
}

// getUser checks the stored payload comes back byte for byte.
func (r *Runner) getUser() bool {
	resp := r.client.Get(userKey, r.ks)
	if !resp.Success {
		return false
	}
	if resp.Content != updatedUserDocument {
		log.Warn().
			Str("key", userKey).
			Str("content", resp.Content).
			Msg("Fetched document does not match what was stored")
		return false
	}
	log.Debug().Str("key", userKey).Str("content", resp.Content).Msg("Fetched document")
	return true
}

func (r *Runner) existsCheck() bool {
	resp := r.client.Exists(userKey, r.ks)
	return resp.Success && resp.Content == "true"
}

// storeItems writes the item documents one by one under fixed keys: Add
// first, and when the key survived an earlier run, Upsert instead.
func (r *Runner) storeItems() bool {
	for n := 1; n <= r.count; n++ {
		key := fmt.Sprintf("item::%d", n)
		doc := itemDocument(n)

		resp := r.client.Add(key, doc, r.ks)
		if resp.Success {
			continue
		}
		if resp.Err == nil || resp.Err.Kind != couchbase.KindDocumentExists {
			return false
		}
		if !r.client.Upsert(key, doc, r.ks).Success {
			return false
		}
	}
	return true
}

// pipelineAdd stores the item documents as one bulk batch. Keys carry a
// per-run id so repeated runs never collide.
func (r *Runner) pipelineAdd() bool {
	pipeline := r.client.NewPipeline(r.ks)
	r.itemKeys = r.itemKeys[:0]
	for n := 1; n <= r.count; n++ {
		key := fmt.Sprintf("item::%s::%d", r.runID, n)
		r.itemKeys = append(r.itemKeys, key)
		if err := pipeline.Queue(couchbase.OpAdd, key, itemDocument(n)); err != nil {
			return false
		}
	}
	return allSucceeded(pipeline.Execute())
}

// pipelineRemove deletes the item documents again as one bulk batch.
func (r *Runner) pipelineRemove() bool {
	pipeline := r.client.NewPipeline(r.ks)
	for _, key := range r.itemKeys {
		if err := pipeline.Queue(couchbase.OpRemove, key, ""); err != nil {
			return false
		}
	}
	return allSucceeded(pipeline.Execute())
}

func allSucceeded(responses []couchbase.Response) bool {
	for _, resp := range responses {
		if !resp.Success {
			return false
		}
	}
	return len(responses) > 0
}

// clusterQuery lists the documents this run wrote, addressing the bucket by
// its full name. Needs a primary index on the bucket.
func (r *Runner) clusterQuery() bool {
	statement := fmt.Sprintf(
		"SELECT META().id FROM `%s` WHERE META().id LIKE 'user::%%' OR META().id LIKE 'item::%s::%%'",
		r.ks.Bucket, r.runID,
	)
	resp := r.client.Query(statement, nil, &couchbase.QueryOptions{
		Consistency: couchbase.ConsistencyRequestPlus,
		Metrics:     true,
	})
	if !resp.Success {
		return false
	}
	log.Debug().Int("rows", len(resp.Rows)).Msg("Cluster query rows")
	return len(resp.Rows) > 0
}

// scopeQuery runs against the bucket's scope so the statement can name the
// collection directly.
func (r *Runner) scopeQuery() bool {
	collection := r.ks.Collection
	if collection == "" {
		collection = couchbase.DefaultCollectionName
	}
	statement := fmt.Sprintf("SELECT META().id, email FROM %s WHERE email LIKE '%%@%%'", collection)
	scope := &couchbase.QueryScope{Bucket: r.ks.Bucket, Scope: r.ks.Scope}
	resp := r.client.Query(statement, scope, &couchbase.QueryOptions{
		Consistency: couchbase.ConsistencyRequestPlus,
	})
	return resp.Success
}

// parameterizedQuery binds the user's email as a positional parameter and
// asks the query service for metrics and phase profiling.
func (r *Runner) parameterizedQuery() bool {
	statement := fmt.Sprintf("SELECT name, email FROM `%s` WHERE email = $1 LIMIT 10", r.ks.Bucket)
	resp := r.client.Query(statement, nil, &couchbase.QueryOptions{
		Consistency:          couchbase.ConsistencyRequestPlus,
		PositionalParameters: []interface{}{userEmail},
		ClientContextID:      "docstore-example-query",
		Adhoc:                true,
		Profile:              true,
		Metrics:              true,
	})
	return resp.Success && len(resp.Rows) > 0
}

func (r *Runner) removeUser() bool {
	return r.client.Remove(userKey, r.ks).Success
}

// Steps returns the recorded step timings in execution order.
func (r *Runner) Steps() []StepTiming {
	return r.steps
}

// Failures counts the steps that did not succeed.
func (r *Runner) Failures() int {
	failures := 0
	for _, s := range r.steps {
		if !s.Success {
			failures++
		}
	}
	return failures
}

// WriteSummary renders the timing table for all executed steps.
func (r *Runner) WriteSummary(w io.Writer) error {
	fmt.Fprintln(w, "========================================")
	fmt.Fprintln(w, "  OPERATION TIMING SUMMARY")
	fmt.Fprintln(w, "========================================")

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "OPERATION\tDURATION\tSTATUS")

	var total time.Duration
	for _, s := range r.steps {
		status := "ok"
		if !s.Success {
			status = "failed"
		}
		total += s.Duration
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, s.Duration.Round(time.Microsecond), status)
	}
	fmt.Fprintf(tw, "TOTAL\t%s\t\n", total.Round(time.Microsecond))
	return tw.Flush()
}
