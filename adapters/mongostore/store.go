// Package mongostore implements the store ports on top of the official MongoDB driver.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/artpar/mongopenter/domain/connstr"
	"github.com/artpar/mongopenter/ports"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// DefaultUserRole is the role granted to provisioned users.
const DefaultUserRole = "dbOwner"

// Store dials MongoDB deployments.
type Store struct {
	logger zerolog.Logger
	role   string
	app    string
}

// Option configures a Store.
type Option func(*Store)

// WithUserRole overrides the role granted by CreateUser.
func WithUserRole(role string) Option {
	return func(s *Store) {
		if role != "" {
			s.role = role
		}
	}
}

// WithAppName sets the driver application name reported to the server.
func WithAppName(name string) Option {
	return func(s *Store) { s.app = name }
}

// New creates a new MongoDB store.
func New(logger zerolog.Logger, opts ...Option) *Store {
	s := &Store{logger: logger, role: DefaultUserRole, app: "mongopenter"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect dials uri and verifies the deployment is reachable.
func (s *Store) Connect(ctx context.Context, uri string) (ports.Conn, error) {
	clientOpts := options.Client().ApplyURI(uri)
	if s.app != "" {
		clientOpts.SetAppName(s.app)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		s.logger.Error().Err(err).Str("uri", connstr.Redact(uri)).Msg("failed to get connection")
		return nil, err
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		s.logger.Error().Err(err).Str("uri", connstr.Redact(uri)).Msg("failed to get connection")
		_ = client.Disconnect(ctx)
		return nil, err
	}

	s.logger.Debug().Str("uri", connstr.Redact(uri)).Msg("connected")
	return &conn{client: client, role: s.role}, nil
}

type conn struct {
	client *mongo.Client
	role   string
}

func (c *conn) Database(name string) ports.Database {
	return &database{db: c.client.Database(name), role: c.role}
}

func (c *conn) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

type database struct {
	db   *mongo.Database
	role string
}

func (d *database) Name() string { return d.db.Name() }

func (d *database) UserExists(ctx context.Context, user string) (bool, error) {
	var res struct {
		Users []bson.M `bson:"users"`
	}
	if err := d.db.RunCommand(ctx, bson.D{{Key: "usersInfo", Value: user}}).Decode(&res); err != nil {
		return false, err
	}
	return len(res.Users) > 0, nil
}

func (d *database) CreateUser(ctx context.Context, user, password string) error {
	cmd := bson.D{
		{Key: "createUser", Value: user},
		{Key: "pwd", Value: password},
		{Key: "roles", Value: bson.A{
			bson.D{{Key: "role", Value: d.role}, {Key: "db", Value: d.db.Name()}},
		}},
	}
	return d.db.RunCommand(ctx, cmd).Err()
}

func (d *database) ListCollections(ctx context.Context) ([]any, error) {
	cur, err := d.db.ListCollections(ctx, bson.D{}, options.ListCollections().SetNameOnly(true))
	if err != nil {
		return nil, err
	}
	var records []bson.M
	if err := cur.All(ctx, &records); err != nil {
		return nil, err
	}
	entries := make([]any, len(records))
	for i, r := range records {
		entries[i] = r
	}
	return entries, nil
}

func (d *database) CreateCollection(ctx context.Context, name string) error {
	return d.db.CreateCollection(ctx, name)
}

func (d *database) FindOne(ctx context.Context, collection string, filter any) (bson.M, bool, error) {
	var doc bson.M
	err := d.db.Collection(collection).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (d *database) InsertOne(ctx context.Context, collection string, doc any) error {
	_, err := d.db.Collection(collection).InsertOne(ctx, doc)
	return err
}

func (d *database) UpdateOne(ctx context.Context, collection string, filter, update any, upsert bool) (int64, error) {
	res, err := d.db.Collection(collection).UpdateOne(ctx, filter, update, options.Update().SetUpsert(upsert))
	if err != nil {
		return 0, err
	}
	return res.MatchedCount + res.UpsertedCount, nil
}

func (d *database) RunCommand(ctx context.Context, cmd bson.D) (bson.M, error) {
	var reply bson.M
	err := d.db.RunCommand(ctx, cmd).Decode(&reply)
	if err != nil {
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) {
			return bson.M{"ok": 0, "errmsg": cmdErr.Message, "code": cmdErr.Code}, fmt.Errorf("%s: %w", commandName(cmd), err)
		}
		return reply, fmt.Errorf("%s: %w", commandName(cmd), err)
	}
	return reply, nil
}

func commandName(cmd bson.D) string {
	if len(cmd) == 0 {
		return "command"
	}
	return cmd[0].Key
}

// Ensure interface compliance.
var _ ports.Store = (*Store)(nil)
