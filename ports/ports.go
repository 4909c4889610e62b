// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Store Ports
// -----------------------------------------------------------------------------

// Store opens connections to the document database.
type Store interface {
	// Connect dials uri and returns a live connection.
	Connect(ctx context.Context, uri string) (Conn, error)
}

// Conn is one live connection. It is never shared between phases.
type Conn interface {
	// Database derives a handle for the named database. No I/O happens here.
	Database(name string) Database

	// Close releases the connection.
	Close(ctx context.Context) error
}

// Database is the per-database surface used by provisioning and hooks.
type Database interface {
	// Name returns the database name.
	Name() string

	// UserExists reports whether user is defined on this database.
	UserExists(ctx context.Context, user string) (bool, error)

	// CreateUser grants user with password on this database.
	CreateUser(ctx context.Context, user, password string) error

	// ListCollections returns raw catalog entries. Entries are either
	// qualified "<db>.<name>" strings or records whose name field holds the
	// bare collection name; callers normalize them.
	ListCollections(ctx context.Context) ([]any, error)

	// CreateCollection creates the named collection.
	CreateCollection(ctx context.Context, name string) error

	// FindOne returns the first document matching filter, if any.
	FindOne(ctx context.Context, collection string, filter any) (bson.M, bool, error)

	// InsertOne inserts doc into collection.
	InsertOne(ctx context.Context, collection string, doc any) error

	// UpdateOne applies update to the first match of filter.
	// It returns the number of documents matched or upserted.
	UpdateOne(ctx context.Context, collection string, filter, update any, upsert bool) (int64, error)

	// RunCommand runs an administrative or database command and returns
	// its raw reply. The reply may carry an errmsg even when err is nil.
	RunCommand(ctx context.Context, cmd bson.D) (bson.M, error)
}
