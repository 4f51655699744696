package couchbase

import (
	"encoding/json"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Integration tests need a reachable cluster and are skipped otherwise:
//
//	COUCHBASE_TEST_URL=couchbase://localhost go test ./pkg/couchbase/
//
// The bucket (COUCHBASE_TEST_BUCKET, default "testing") must exist.
func newTestClient(t *testing.T) (*Client, Keyspace) {
	t.Helper()

	url := os.Getenv("COUCHBASE_TEST_URL")
	if url == "" {
		t.Skip("COUCHBASE_TEST_URL not set, skipping integration test")
	}

	username := envOrDefault("COUCHBASE_TEST_USERNAME", "Administrator")
	password := envOrDefault("COUCHBASE_TEST_PASSWORD", "password")
	bucket := envOrDefault("COUCHBASE_TEST_BUCKET", "testing")

	client := New()
	if err := client.Initialize(url, username, password); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})

	if err := client.WaitUntilReady(bucket, 30*time.Second); err != nil {
		t.Fatalf("bucket not ready: %v", err)
	}
	return client, Keyspace{Bucket: bucket}
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func testKey(t *testing.T) string {
	t.Helper()
	return "it::" + t.Name() + "::" + uuid.NewString()
}

func removeQuietly(client *Client, key string, ks Keyspace) {
	client.Remove(key, ks)
}

func TestIntegrationAddGetRoundTrip(t *testing.T) {
	client, ks := newTestClient(t)
	key := testKey(t)
	value := `{"name": "John Doe", "email": "john.doe@example.com", "age": 30}`
	t.Cleanup(func() { removeQuietly(client, key, ks) })

	add := client.Add(key, value, ks)
	if !add.Success {
		t.Fatalf("Add failed: %+v", add.Err)
	}
	if add.Content != "" {
		t.Errorf("Add Content = %q, want empty", add.Content)
	}

	get := client.Get(key, ks)
	if !get.Success {
		t.Fatalf("Get failed: %+v", get.Err)
	}
	if get.Content != value {
		t.Errorf("Get Content = %q, want the stored payload %q", get.Content, value)
	}
}

func TestIntegrationDuplicateAdd(t *testing.T) {
	client, ks := newTestClient(t)
	key := testKey(t)
	t.Cleanup(func() { removeQuietly(client, key, ks) })

	if resp := client.Add(key, `{"n": 1}`, ks); !resp.Success {
		t.Fatalf("first Add failed: %+v", resp.Err)
	}

	resp := client.Add(key, `{"n": 2}`, ks)
	if resp.Success {
		t.Fatal("second Add on the same key reported success")
	}
	if resp.Err == nil || resp.Err.Kind != KindDocumentExists {
		t.Errorf("Err = %+v, want kind %s", resp.Err, KindDocumentExists)
	}

	// The original value must have survived the rejected Add.
	if get := client.Get(key, ks); get.Content != `{"n": 1}` {
		t.Errorf("Get Content = %q after rejected Add, want the first value", get.Content)
	}
}

func TestIntegrationUpsertReplaces(t *testing.T) {
	client, ks := newTestClient(t)
	key := testKey(t)
	t.Cleanup(func() { removeQuietly(client, key, ks) })

	if resp := client.Upsert(key, `{"version": 1}`, ks); !resp.Success {
		t.Fatalf("Upsert on new key failed: %+v", resp.Err)
	}
	if resp := client.Upsert(key, `{"version": 2}`, ks); !resp.Success {
		t.Fatalf("Upsert on existing key failed: %+v", resp.Err)
	}

	if get := client.Get(key, ks); get.Content != `{"version": 2}` {
		t.Errorf("Get Content = %q, want the replacement value", get.Content)
	}
}

func TestIntegrationRemoveAndMissingKey(t *testing.T) {
	client, ks := newTestClient(t)
	key := testKey(t)

	if resp := client.Add(key, `{"gone": "soon"}`, ks); !resp.Success {
		t.Fatalf("Add failed: %+v", resp.Err)
	}
	if resp := client.Remove(key, ks); !resp.Success {
		t.Fatalf("Remove failed: %+v", resp.Err)
	}

	get := client.Get(key, ks)
	if get.Success || get.Err == nil || get.Err.Kind != KindDocumentNotFound {
		t.Errorf("Get after Remove Err = %+v, want kind %s", get.Err, KindDocumentNotFound)
	}

	again := client.Remove(key, ks)
	if again.Success || again.Err == nil || again.Err.Kind != KindDocumentNotFound {
		t.Errorf("second Remove Err = %+v, want kind %s", again.Err, KindDocumentNotFound)
	}
}

func TestIntegrationExists(t *testing.T) {
	client, ks := newTestClient(t)
	key := testKey(t)
	t.Cleanup(func() { removeQuietly(client, key, ks) })

	if resp := client.Exists(key, ks); !resp.Success || resp.Content != "false" {
		t.Errorf("Exists before Add = %+v, want Content \"false\"", resp)
	}
	if resp := client.Add(key, `{"here": true}`, ks); !resp.Success {
		t.Fatalf("Add failed: %+v", resp.Err)
	}
	if resp := client.Exists(key, ks); !resp.Success || resp.Content != "true" {
		t.Errorf("Exists after Add = %+v, want Content \"true\"", resp)
	}
}

func TestIntegrationQueryEmptyResult(t *testing.T) {
	client, ks := newTestClient(t)

	// USE KEYS needs no index and the random key matches nothing.
	statement := "SELECT * FROM `" + ks.Bucket + "` USE KEYS ['" + uuid.NewString() + "']"
	resp := client.Query(statement, nil, nil)

	if !resp.Success {
		t.Fatalf("query failed: %+v", resp.Err)
	}
	if len(resp.Rows) != 0 {
		t.Errorf("Rows = %v, want an empty result", resp.Rows)
	}
}

func TestIntegrationParameterizedQuery(t *testing.T) {
	client, ks := newTestClient(t)
	key := testKey(t)
	value := `{"name": "Ada", "email": "ada@example.com"}`
	t.Cleanup(func() { removeQuietly(client, key, ks) })

	if resp := client.Upsert(key, value, ks); !resp.Success {
		t.Fatalf("Upsert failed: %+v", resp.Err)
	}

	statement := "SELECT d.* FROM `" + ks.Bucket + "` AS d USE KEYS [$1]"
	resp := client.Query(statement, nil, &QueryOptions{
		PositionalParameters: []interface{}{key},
		ClientContextID:      "integration-test",
		Metrics:              true,
	})
	if !resp.Success {
		t.Fatalf("query failed: %+v", resp.Err)
	}
	if len(resp.Rows) != 1 {
		t.Fatalf("Rows = %d, want exactly one", len(resp.Rows))
	}
	assertSameJSON(t, resp.Rows[0], value)
}

func TestIntegrationScopeQuery(t *testing.T) {
	client, ks := newTestClient(t)
	key := testKey(t)
	value := `{"name": "Grace", "email": "grace@example.com"}`
	t.Cleanup(func() { removeQuietly(client, key, ks) })

	if resp := client.Upsert(key, value, ks); !resp.Success {
		t.Fatalf("Upsert failed: %+v", resp.Err)
	}

	// Scope-level execution lets the statement name the collection directly.
	statement := "SELECT d.* FROM " + DefaultCollectionName + " AS d USE KEYS [$key]"
	resp := client.Query(statement, &QueryScope{Bucket: ks.Bucket}, &QueryOptions{
		NamedParameters: map[string]interface{}{"key": key},
	})
	if !resp.Success {
		t.Fatalf("scope query failed: %+v", resp.Err)
	}
	if len(resp.Rows) != 1 {
		t.Fatalf("Rows = %d, want exactly one", len(resp.Rows))
	}
	assertSameJSON(t, resp.Rows[0], value)
}

func TestIntegrationPipelineMixedBatch(t *testing.T) {
	client, ks := newTestClient(t)
	existing := testKey(t)
	fresh := testKey(t)
	missing := testKey(t)
	value := `{"role": "pipeline fixture"}`
	t.Cleanup(func() {
		removeQuietly(client, existing, ks)
		removeQuietly(client, fresh, ks)
	})

	if resp := client.Upsert(existing, value, ks); !resp.Success {
		t.Fatalf("fixture Upsert failed: %+v", resp.Err)
	}

	pipeline := client.NewPipeline(ks)
	mustQueue := func(op Op, key, val string) {
		t.Helper()
		if err := pipeline.Queue(op, key, val); err != nil {
			t.Fatalf("Queue failed: %v", err)
		}
	}
	mustQueue(OpGet, existing, "")
	mustQueue(OpAdd, existing, `{"should": "collide"}`)
	mustQueue(OpRemove, missing, "")
	mustQueue(OpUpsert, fresh, `{"fresh": true}`)

	responses := pipeline.Execute()
	if len(responses) != 4 {
		t.Fatalf("Execute() returned %d responses, want 4", len(responses))
	}

	if !responses[0].Success || responses[0].Content != value {
		t.Errorf("get slot = %+v, want the fixture payload", responses[0])
	}
	if responses[1].Err == nil || responses[1].Err.Kind != KindDocumentExists {
		t.Errorf("colliding add slot Err = %+v, want kind %s", responses[1].Err, KindDocumentExists)
	}
	if responses[2].Err == nil || responses[2].Err.Kind != KindDocumentNotFound {
		t.Errorf("missing remove slot Err = %+v, want kind %s", responses[2].Err, KindDocumentNotFound)
	}
	if !responses[3].Success {
		t.Errorf("upsert slot = %+v, want success", responses[3])
	}

	if get := client.Get(fresh, ks); get.Content != `{"fresh": true}` {
		t.Errorf("pipeline upsert did not land: %+v", get)
	}
}

func TestIntegrationOperationsAfterClose(t *testing.T) {
	url := os.Getenv("COUCHBASE_TEST_URL")
	if url == "" {
		t.Skip("COUCHBASE_TEST_URL not set, skipping integration test")
	}
	username := envOrDefault("COUCHBASE_TEST_USERNAME", "Administrator")
	password := envOrDefault("COUCHBASE_TEST_PASSWORD", "password")
	bucket := envOrDefault("COUCHBASE_TEST_BUCKET", "testing")

	client := New()
	if err := client.Initialize(url, username, password); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("repeated Close = %v, want nil", err)
	}

	resp := client.Get("any", Keyspace{Bucket: bucket})
	if resp.Success || resp.Err == nil || resp.Err.Kind != KindNotInitialized {
		t.Errorf("Get after Close Err = %+v, want kind %s", resp.Err, KindNotInitialized)
	}
}

// assertSameJSON compares two JSON documents structurally.
func assertSameJSON(t *testing.T, got, want string) {
	t.Helper()
	var gotVal, wantVal interface{}
	if err := json.Unmarshal([]byte(got), &gotVal); err != nil {
		t.Fatalf("got is not JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(want), &wantVal); err != nil {
		t.Fatalf("want is not JSON: %v", err)
	}
	if !reflect.DeepEqual(gotVal, wantVal) {
		t.Errorf("JSON mismatch: got %s, want %s", got, want)
	}
}
