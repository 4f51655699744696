package couchbase

// Names Couchbase gives the implicit scope and collection that every bucket
// starts with.
const (
	DefaultScopeName      = "_default"
	DefaultCollectionName = "_default"
)

// Keyspace identifies the bucket, scope, and collection a document lives in.
// Scope and Collection may be left empty, in which case the bucket's default
// scope and collection are used.
type Keyspace struct {
	Bucket     string
	Scope      string
	Collection string
}

// withDefaults returns a copy of the keyspace with empty scope and collection
// names resolved to the Couchbase defaults.
func (k Keyspace) withDefaults() Keyspace {
	if k.Scope == "" {
		k.Scope = DefaultScopeName
	}
	if k.Collection == "" {
		k.Collection = DefaultCollectionName
	}
	return k
}

// String renders the keyspace as a bucket.scope.collection path.
func (k Keyspace) String() string {
	k = k.withDefaults()
	return k.Bucket + "." + k.Scope + "." + k.Collection
}
