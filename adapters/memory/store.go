// Package memory provides an in-memory document store for tests and dry runs.
package memory

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/artpar/mongopenter/ports"
	"go.mongodb.org/mongo-driver/bson"
)

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("memory: connection closed")

// CatalogShape selects how ListCollections reports entries.
type CatalogShape int

const (
	// CatalogRecords reports {name: "<collection>"} records.
	CatalogRecords CatalogShape = iota
	// CatalogQualified reports bare "<database>.<collection>" strings.
	CatalogQualified
	// CatalogMixed alternates between both shapes.
	CatalogMixed
)

// Command is one recorded RunCommand call.
type Command struct {
	Database string
	Name     string
	Cmd      bson.D
}

// Store is an in-memory implementation of ports.Store.
type Store struct {
	mu       sync.Mutex
	dbs      map[string]*database
	failures map[string]error
	reply    func(database string, cmd bson.D) (bson.M, error)
	shape    CatalogShape
	calls    []string
	commands []Command
	uris     []string
	connects int
	closes   int
}

type database struct {
	collections []string
	docs        map[string][]map[string]any
	users       map[string]string
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		dbs:      make(map[string]*database),
		failures: make(map[string]error),
	}
}

// FailOn makes the operation identified by op return err.
// Operation keys:
//
//	connect
//	close
//	createUser <db>.<user>
//	usersInfo <db>.<user>
//	listCollections <db>
//	createCollection <db>.<collection>
//	find <db>.<collection>
//	insert <db>.<collection>
//	update <db>.<collection>
//	command <db>.<commandName>
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// SetCommandReply overrides replies to RunCommand. By default every
// command replies {ok: 1}.
func (s *Store) SetCommandReply(fn func(database string, cmd bson.D) (bson.M, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply = fn
}

// SetCatalogShape selects the ListCollections entry shape.
func (s *Store) SetCatalogShape(shape CatalogShape) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shape = shape
}

// AddCollection pre-creates a collection.
func (s *Store) AddCollection(db, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureCollection(db, name)
}

// AddUser pre-creates a user.
func (s *Store) AddUser(db, user, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db(db).users[user] = password
}

// Insert pre-seeds a document.
func (s *Store) Insert(db, collection string, doc map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureCollection(db, collection)
	d := s.db(db)
	d.docs[collection] = append(d.docs[collection], toMap(normalize(doc)))
}

// Documents returns a copy of the documents stored in a collection.
func (s *Store) Documents(db, collection string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dbs[db]
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(d.docs[collection]))
	for _, doc := range d.docs[collection] {
		out = append(out, toMap(normalize(doc)))
	}
	return out
}

// Collections returns the collection names of a database in creation order.
func (s *Store) Collections(db string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dbs[db]
	if !ok {
		return nil
	}
	return append([]string(nil), d.collections...)
}

// HasUser reports whether user exists on db.
func (s *Store) HasUser(db, user string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dbs[db]
	if !ok {
		return false
	}
	_, ok = d.users[user]
	return ok
}

// Calls returns every recorded operation key in call order.
func (s *Store) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Count returns how many recorded operations start with prefix.
func (s *Store) Count(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Commands returns every recorded command in call order.
func (s *Store) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.commands...)
}

// Connects returns how many connections were opened.
func (s *Store) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// Closes returns how many connections were closed.
func (s *Store) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// URIs returns the connection strings passed to Connect.
func (s *Store) URIs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.uris...)
}

// Connect opens a new connection.
func (s *Store) Connect(ctx context.Context, uri string) (ports.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uris = append(s.uris, uri)
	if err := s.failures["connect"]; err != nil {
		return nil, err
	}
	s.connects++
	return &conn{store: s}, nil
}

func (s *Store) db(name string) *database {
	d, ok := s.dbs[name]
	if !ok {
		d = &database{
			docs:  make(map[string][]map[string]any),
			users: make(map[string]string),
		}
		s.dbs[name] = d
	}
	return d
}

func (s *Store) ensureCollection(db, name string) {
	d := s.db(db)
	for _, c := range d.collections {
		if c == name {
			return
		}
	}
	d.collections = append(d.collections, name)
}

// record logs op and returns its injected failure, if any.
func (s *Store) record(op string) error {
	s.calls = append(s.calls, op)
	return s.failures[op]
}

type conn struct {
	store  *Store
	mu     sync.Mutex
	closed bool
}

func (c *conn) Database(name string) ports.Database {
	return &dbHandle{conn: c, name: name}
}

func (c *conn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.closed = true

	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return s.failures["close"]
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type dbHandle struct {
	conn *conn
	name string
}

func (h *dbHandle) Name() string { return h.name }

// begin locks the store and records op.
func (h *dbHandle) begin(op string) (*Store, error) {
	if h.conn.isClosed() {
		return nil, ErrClosed
	}
	s := h.conn.store
	s.mu.Lock()
	if err := s.record(op); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	return s, nil
}

func (h *dbHandle) UserExists(ctx context.Context, user string) (bool, error) {
	s, err := h.begin("usersInfo " + h.name + "." + user)
	if err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	d, ok := s.dbs[h.name]
	if !ok {
		return false, nil
	}
	_, ok = d.users[user]
	return ok, nil
}

func (h *dbHandle) CreateUser(ctx context.Context, user, password string) error {
	s, err := h.begin("createUser " + h.name + "." + user)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()
	d := s.db(h.name)
	if _, ok := d.users[user]; ok {
		return fmt.Errorf("memory: user %q already exists on %s", user, h.name)
	}
	d.users[user] = password
	return nil
}

func (h *dbHandle) ListCollections(ctx context.Context) ([]any, error) {
	s, err := h.begin("listCollections " + h.name)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	d, ok := s.dbs[h.name]
	if !ok {
		return nil, nil
	}
	entries := make([]any, 0, len(d.collections))
	for i, c := range d.collections {
		qualified := s.shape == CatalogQualified || (s.shape == CatalogMixed && i%2 == 1)
		if qualified {
			entries = append(entries, h.name+"."+c)
		} else {
			entries = append(entries, bson.M{"name": c, "type": "collection"})
		}
	}
	return entries, nil
}

func (h *dbHandle) CreateCollection(ctx context.Context, name string) error {
	s, err := h.begin("createCollection " + h.name + "." + name)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()
	for _, c := range s.db(h.name).collections {
		if c == name {
			return fmt.Errorf("memory: collection %s.%s already exists", h.name, name)
		}
	}
	s.ensureCollection(h.name, name)
	return nil
}

func (h *dbHandle) FindOne(ctx context.Context, collection string, filter any) (bson.M, bool, error) {
	s, err := h.begin("find " + h.name + "." + collection)
	if err != nil {
		return nil, false, err
	}
	defer s.mu.Unlock()
	d, ok := s.dbs[h.name]
	if !ok {
		return nil, false, nil
	}
	f := toMap(normalize(filter))
	for _, doc := range d.docs[collection] {
		if matches(doc, f) {
			return bson.M(toMap(normalize(doc))), true, nil
		}
	}
	return nil, false, nil
}

func (h *dbHandle) InsertOne(ctx context.Context, collection string, doc any) error {
	s, err := h.begin("insert " + h.name + "." + collection)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()
	m := toMap(normalize(doc))
	if m == nil {
		return fmt.Errorf("memory: cannot insert %T", doc)
	}
	s.ensureCollection(h.name, collection)
	d := s.db(h.name)
	d.docs[collection] = append(d.docs[collection], m)
	return nil
}

func (h *dbHandle) UpdateOne(ctx context.Context, collection string, filter, update any, upsert bool) (int64, error) {
	s, err := h.begin("update " + h.name + "." + collection)
	if err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	f := toMap(normalize(filter))
	u := toMap(normalize(update))
	d := s.db(h.name)
	for _, doc := range d.docs[collection] {
		if matches(doc, f) {
			applyUpdate(doc, u)
			return 1, nil
		}
	}
	if !upsert {
		return 0, nil
	}
	doc := make(map[string]any, len(f))
	for k, v := range f {
		if !strings.HasPrefix(k, "$") {
			doc[k] = v
		}
	}
	applyUpdate(doc, u)
	s.ensureCollection(h.name, collection)
	d.docs[collection] = append(d.docs[collection], doc)
	return 1, nil
}

func (h *dbHandle) RunCommand(ctx context.Context, cmd bson.D) (bson.M, error) {
	name := ""
	if len(cmd) > 0 {
		name = cmd[0].Key
	}
	s, err := h.begin("command " + h.name + "." + name)
	if err != nil {
		return nil, err
	}
	s.commands = append(s.commands, Command{Database: h.name, Name: name, Cmd: cmd})
	reply := s.reply
	s.mu.Unlock()

	if reply != nil {
		return reply(h.name, cmd)
	}
	return bson.M{"ok": 1}, nil
}

func applyUpdate(doc map[string]any, update map[string]any) {
	for op, arg := range update {
		fields := toMap(arg)
		switch op {
		case "$set":
			for k, v := range fields {
				doc[k] = v
			}
		case "$addToSet":
			for k, v := range fields {
				list, _ := doc[k].([]any)
				found := false
				for _, existing := range list {
					if valuesEqual(existing, v) {
						found = true
						break
					}
				}
				if !found {
					list = append(list, v)
				}
				doc[k] = list
			}
		}
	}
}

func matches(doc, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// normalize converts driver container types into plain maps and slices.
func normalize(v any) any {
	switch x := v.(type) {
	case bson.M:
		return normalize(map[string]any(x))
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalize(val)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		return normalize([]any(x))
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalize(val)
		}
		return out
	}
	return v
}

func toMap(v any) map[string]any {
	m, _ := normalize(v).(map[string]any)
	return m
}

func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch x := a.(type) {
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			if !valuesEqual(v, y[k]) {
				return false
			}
		}
		return true
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !valuesEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Ensure interface compliance.
var _ ports.Store = (*Store)(nil)
