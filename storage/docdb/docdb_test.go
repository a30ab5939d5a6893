package docdb

import (
	"context"
	"errors"
	"testing"

	"github.com/bxcodec/faker/v4"
	"github.com/google/go-cmp/cmp"
	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite"
)

func withDB(t *testing.T, maxCollections int, f func(ctx context.Context, db *DB)) {
	t.Helper()
	ctx := context.Background()
	sqlDB, err := sqlx.ConnectContext(ctx, "sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	db, err := New(ctx, sqlDB, maxCollections)
	if err != nil {
		t.Fatal(err)
	}
	f(ctx, db)
}

func names(docs []Document) []any {
	result := make([]any, len(docs))
	for i, doc := range docs {
		result[i] = doc["name"]
	}
	return result
}

func TestInsertFind(t *testing.T) {
	withDB(t, 0, func(ctx context.Context, db *DB) {
		scores := db.Collection(1, "scores")
		for _, doc := range []Document{
			{"name": "b", "score": 3, "team": "red"},
			{"name": "a", "score": 10, "team": "blue"},
			{"name": "c", "score": 7, "team": "red"},
			{"name": "d", "team": "red"},
		} {
			if _, err := scores.Insert(ctx, doc); err != nil {
				t.Fatal(err)
			}
		}
		got, err := scores.Find(ctx, Query{"team": "red"}, FindOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]any{"b", "c", "d"}, names(got)); diff != "" {
			t.Errorf("insertion order: %v", diff)
		}
		got, err = scores.Find(ctx, nil, FindOptions{Sort: "-score", Skip: 1, Limit: 2})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]any{"c", "b"}, names(got)); diff != "" {
			t.Errorf("sorted page: %v", diff)
		}
		got, err = scores.Find(ctx, nil, FindOptions{Sort: "score"})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]any{"b", "c", "a", "d"}, names(got)); diff != "" {
			t.Errorf("missing fields sort last: %v", diff)
		}
		one, err := scores.FindOne(ctx, Query{"score": 10})
		if err != nil {
			t.Fatal(err)
		}
		if one["name"] != "a" || one[IDField] == "" {
			t.Errorf("got %v", one)
		}
		none, err := scores.FindOne(ctx, Query{"score": 11})
		if err != nil || none != nil {
			t.Errorf("got %v, %v for no match", none, err)
		}
		if n, err := scores.Count(ctx, Query{"team": "red"}); err != nil || n != 3 {
			t.Errorf("got %v, %v, want 3", n, err)
		}
	})
}

func TestUpdateDelete(t *testing.T) {
	withDB(t, 0, func(ctx context.Context, db *DB) {
		players := db.Collection(1, "players")
		for i := 0; i < 4; i++ {
			if _, err := players.Insert(ctx, Document{"name": faker.Username(), "level": 1}); err != nil {
				t.Fatal(err)
			}
		}
		if ok, err := players.UpdateOne(ctx, Query{"level": 1}, Document{"level": 2, IDField: "hijack"}); err != nil || !ok {
			t.Fatalf("got %v, %v", ok, err)
		}
		if n, err := players.Update(ctx, Query{"level": 1}, Document{"level": 3}); err != nil || n != 3 {
			t.Errorf("got %v, %v, want 3", n, err)
		}
		if n, err := players.Count(ctx, Query{IDField: "hijack"}); err != nil || n != 0 {
			t.Errorf("update replaced the id")
		}
		if ok, err := players.DeleteOne(ctx, Query{"level": 3}); err != nil || !ok {
			t.Errorf("got %v, %v", ok, err)
		}
		if n, err := players.Delete(ctx, Query{"level": 3}); err != nil || n != 2 {
			t.Errorf("got %v, %v, want 2", n, err)
		}
		if ok, err := players.DeleteOne(ctx, Query{"level": 3}); err != nil || ok {
			t.Errorf("got %v, %v deleting nothing", ok, err)
		}
		if n, err := players.Count(ctx, nil); err != nil || n != 1 {
			t.Errorf("got %v, %v, want 1 left", n, err)
		}
	})
}

func TestCollections(t *testing.T) {
	withDB(t, 2, func(ctx context.Context, db *DB) {
		for _, name := range []string{"b", "a"} {
			if _, err := db.Collection(1, name).Insert(ctx, Document{}); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := db.Collection(1, "c").Insert(ctx, Document{}); !errors.Is(err, ErrTooManyCollections) {
			t.Errorf("got %v, want %v", err, ErrTooManyCollections)
		}
		if _, err := db.Collection(1, "a").Insert(ctx, Document{}); err != nil {
			t.Errorf("insert into existing collection at cap: %v", err)
		}
		if _, err := db.Collection(2, "c").Insert(ctx, Document{}); err != nil {
			t.Errorf("cap leaked between rooms: %v", err)
		}
		got, err := db.Collections(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"a", "b"}, got); diff != "" {
			t.Errorf("collections: %v", diff)
		}
		if dropped, err := db.DropCollection(ctx, 1, "a"); err != nil || !dropped {
			t.Errorf("got %v, %v", dropped, err)
		}
		if _, err := db.Collection(1, "c").Insert(ctx, Document{}); err != nil {
			t.Errorf("insert after drop: %v", err)
		}
		if err := db.DropRoom(ctx, 1); err != nil {
			t.Fatal(err)
		}
		if got, err := db.Collections(ctx, 1); err != nil || len(got) != 0 {
			t.Errorf("got %v, %v after DropRoom", got, err)
		}
	})
}
