// Package docdb is the document store behind the room script Database API:
// per room collections of JSON documents with simple equality queries.
package docdb

import (
	"cmp"
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/zond/juiceroom"

	goccy "github.com/goccy/go-json"
)

const (
	// IDField holds the id assigned on insert.
	IDField = "_id"

	DefaultMaxCollections = 16
)

var (
	ErrTooManyCollections = errors.New("too many collections")
)

type Document map[string]any

// Query matches documents whose top level fields equal every field of the query.
type Query map[string]any

type FindOptions struct {
	// Sort names a field to order by, descending if prefixed with "-".
	Sort  string
	Skip  int
	Limit int
}

type DB struct {
	sql            *sqlx.DB
	maxCollections int
}

type row struct {
	ID         string `db:"id"`
	RoomID     int    `db:"room_id"`
	Collection string `db:"collection"`
	Body       string `db:"body"`
}

func New(ctx context.Context, db *sqlx.DB, maxCollections int) (*DB, error) {
	if maxCollections <= 0 {
		maxCollections = DefaultMaxCollections
	}
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			room_id INTEGER NOT NULL,
			collection TEXT NOT NULL,
			body TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS documents_collection ON documents (room_id, collection, id)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, juiceroom.WithStack(err)
		}
	}
	return &DB{sql: db, maxCollections: maxCollections}, nil
}

func (d *DB) MaxCollections() int {
	return d.maxCollections
}

// Collections returns the non empty collections of a room, sorted.
func (d *DB) Collections(ctx context.Context, roomID int) ([]string, error) {
	result := []string{}
	if err := d.sql.SelectContext(ctx, &result, d.sql.Rebind(
		"SELECT DISTINCT collection FROM documents WHERE room_id = ? ORDER BY collection"), roomID); err != nil {
		return nil, juiceroom.WithStack(err)
	}
	return result, nil
}

func (d *DB) DropCollection(ctx context.Context, roomID int, name string) (bool, error) {
	res, err := d.sql.ExecContext(ctx, d.sql.Rebind("DELETE FROM documents WHERE room_id = ? AND collection = ?"), roomID, name)
	if err != nil {
		return false, juiceroom.WithStack(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, juiceroom.WithStack(err)
	}
	return n > 0, nil
}

func (d *DB) DropRoom(ctx context.Context, roomID int) error {
	_, err := d.sql.ExecContext(ctx, d.sql.Rebind("DELETE FROM documents WHERE room_id = ?"), roomID)
	return juiceroom.WithStack(err)
}

func (d *DB) Collection(roomID int, name string) *Collection {
	return &Collection{db: d, roomID: roomID, name: name}
}

type Collection struct {
	db     *DB
	roomID int
	name   string
}

func (c *Collection) Name() string {
	return c.name
}

// normalize gives doc the shape it would have after a JSON round trip, so
// that Go and script values compare equal.
func normalize[T ~map[string]any](doc T) (T, error) {
	b, err := goccy.Marshal(doc)
	if err != nil {
		return nil, juiceroom.WithStack(err)
	}
	result := T{}
	if err := goccy.Unmarshal(b, &result); err != nil {
		return nil, juiceroom.WithStack(err)
	}
	return result, nil
}

// Insert stores a copy of doc and returns its new id. Fails with
// ErrTooManyCollections if the collection is new and the room has no room for it.
func (c *Collection) Insert(ctx context.Context, doc Document) (string, error) {
	if strings.TrimSpace(c.name) == "" {
		return "", juiceroom.WithStack(fmt.Errorf("empty collection name"))
	}
	collections, err := c.db.Collections(ctx, c.roomID)
	if err != nil {
		return "", err
	}
	if !slices.Contains(collections, c.name) && len(collections) >= c.db.maxCollections {
		return "", juiceroom.WithStack(ErrTooManyCollections)
	}
	doc, err = normalize(doc)
	if err != nil {
		return "", err
	}
	id := ulid.Make().String()
	doc[IDField] = id
	body, err := goccy.Marshal(doc)
	if err != nil {
		return "", juiceroom.WithStack(err)
	}
	if _, err := c.db.sql.NamedExecContext(ctx,
		"INSERT INTO documents (id, room_id, collection, body) VALUES (:id, :room_id, :collection, :body)",
		row{ID: id, RoomID: c.roomID, Collection: c.name, Body: string(body)}); err != nil {
		return "", juiceroom.WithStack(err)
	}
	return id, nil
}

// all returns every document of the collection in insertion order.
func (c *Collection) all(ctx context.Context) ([]Document, error) {
	rows := []row{}
	if err := c.db.sql.SelectContext(ctx, &rows, c.db.sql.Rebind(
		"SELECT * FROM documents WHERE room_id = ? AND collection = ? ORDER BY id"), c.roomID, c.name); err != nil {
		return nil, juiceroom.WithStack(err)
	}
	result := make([]Document, 0, len(rows))
	for _, r := range rows {
		doc := Document{}
		if err := goccy.Unmarshal([]byte(r.Body), &doc); err != nil {
			return nil, juiceroom.WithStack(err)
		}
		result = append(result, doc)
	}
	return result, nil
}

func (q Query) matches(doc Document) bool {
	for k, v := range q {
		if !reflect.DeepEqual(doc[k], v) {
			return false
		}
	}
	return true
}

func (c *Collection) matching(ctx context.Context, q Query) ([]Document, error) {
	q, err := normalize(q)
	if err != nil {
		return nil, err
	}
	docs, err := c.all(ctx)
	if err != nil {
		return nil, err
	}
	result := []Document{}
	for _, doc := range docs {
		if q.matches(doc) {
			result = append(result, doc)
		}
	}
	return result, nil
}

// compareValues orders numbers, then strings, then booleans, then anything else.
func compareValues(a, b any) int {
	rank := func(v any) int {
		switch v.(type) {
		case float64:
			return 0
		case string:
			return 1
		case bool:
			return 2
		case nil:
			return 4
		}
		return 3
	}
	if ra, rb := rank(a), rank(b); ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch av := a.(type) {
	case float64:
		return cmp.Compare(av, b.(float64))
	case string:
		return cmp.Compare(av, b.(string))
	case bool:
		bv := b.(bool)
		if av == bv {
			return 0
		} else if !av {
			return -1
		}
		return 1
	}
	return 0
}

// Find returns matching documents in insertion order unless opts sorts them.
func (c *Collection) Find(ctx context.Context, q Query, opts FindOptions) ([]Document, error) {
	docs, err := c.matching(ctx, q)
	if err != nil {
		return nil, err
	}
	if field := strings.TrimPrefix(opts.Sort, "-"); field != "" {
		desc := strings.HasPrefix(opts.Sort, "-")
		slices.SortStableFunc(docs, func(a, b Document) int {
			_, aFound := a[field]
			_, bFound := b[field]
			if aFound != bFound {
				if aFound {
					return -1
				}
				return 1
			}
			result := compareValues(a[field], b[field])
			if desc {
				return -result
			}
			return result
		})
	}
	if opts.Skip > 0 {
		docs = docs[min(opts.Skip, len(docs)):]
	}
	if opts.Limit > 0 && opts.Limit < len(docs) {
		docs = docs[:opts.Limit]
	}
	return docs, nil
}

// FindOne returns nil if nothing matches.
func (c *Collection) FindOne(ctx context.Context, q Query) (Document, error) {
	docs, err := c.Find(ctx, q, FindOptions{Limit: 1})
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (c *Collection) Count(ctx context.Context, q Query) (int, error) {
	docs, err := c.matching(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (c *Collection) update(ctx context.Context, q Query, set Document, limit int) (int, error) {
	set, err := normalize(set)
	if err != nil {
		return 0, err
	}
	delete(set, IDField)
	docs, err := c.matching(ctx, q)
	if err != nil {
		return 0, err
	}
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	tx, err := c.db.sql.BeginTxx(ctx, nil)
	if err != nil {
		return 0, juiceroom.WithStack(err)
	}
	defer tx.Rollback()
	for _, doc := range docs {
		for k, v := range set {
			doc[k] = v
		}
		body, err := goccy.Marshal(doc)
		if err != nil {
			return 0, juiceroom.WithStack(err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind("UPDATE documents SET body = ? WHERE id = ?"), string(body), doc[IDField]); err != nil {
			return 0, juiceroom.WithStack(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, juiceroom.WithStack(err)
	}
	return len(docs), nil
}

// Update sets the fields of set on every matching document and returns how
// many there were.
func (c *Collection) Update(ctx context.Context, q Query, set Document) (int, error) {
	return c.update(ctx, q, set, 0)
}

func (c *Collection) UpdateOne(ctx context.Context, q Query, set Document) (bool, error) {
	n, err := c.update(ctx, q, set, 1)
	return n > 0, err
}

func (c *Collection) delete(ctx context.Context, q Query, limit int) (int, error) {
	docs, err := c.matching(ctx, q)
	if err != nil {
		return 0, err
	}
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	if len(docs) == 0 {
		return 0, nil
	}
	ids := make([]any, len(docs))
	for i, doc := range docs {
		ids[i] = doc[IDField]
	}
	query, args, err := sqlx.In("DELETE FROM documents WHERE id IN (?)", ids)
	if err != nil {
		return 0, juiceroom.WithStack(err)
	}
	if _, err := c.db.sql.ExecContext(ctx, c.db.sql.Rebind(query), args...); err != nil {
		return 0, juiceroom.WithStack(err)
	}
	return len(docs), nil
}

func (c *Collection) Delete(ctx context.Context, q Query) (int, error) {
	return c.delete(ctx, q, 0)
}

func (c *Collection) DeleteOne(ctx context.Context, q Query) (bool, error) {
	n, err := c.delete(ctx, q, 1)
	return n > 0, err
}
