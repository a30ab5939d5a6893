package server

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zond/juiceroom/room"
	"github.com/zond/juiceroom/storage"
	"github.com/zond/juiceroom/structs"

	goccy "github.com/goccy/go-json"
	gossh "golang.org/x/crypto/ssh"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, what string, f func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !f() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func withServer(t *testing.T, f func(ctx context.Context, srv *Server)) {
	t.Helper()
	ctx := context.Background()
	config := DefaultConfig()
	config.Dir = t.TempDir()
	config.KeyBits = 1024
	srv, err := New(ctx, config)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	f(ctx, srv)
}

func createRoom(ctx context.Context, t *testing.T, srv *Server) int {
	t.Helper()
	r := &storage.Room{Name: "lobby", Heightmap: "000\r\n000"}
	if err := srv.Storage().UpsertRoom(ctx, r); err != nil {
		t.Fatal(err)
	}
	return r.ID
}

func TestFeedErrors(t *testing.T) {
	withServer(t, func(ctx context.Context, srv *Server) {
		ts := httptest.NewServer(srv.Handler())
		defer ts.Close()
		for path, want := range map[string]int{
			"/feed/x":   http.StatusBadRequest,
			"/feed/404": http.StatusNotFound,
			"/nothing":  http.StatusNotFound,
		} {
			resp, err := http.Get(ts.URL + path)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != want {
				t.Errorf("GET %s gave %v, want %v", path, resp.StatusCode, want)
			}
		}
	})
}

func TestFeed(t *testing.T) {
	withServer(t, func(ctx context.Context, srv *Server) {
		id := createRoom(ctx, t, srv)
		r, err := srv.Hotel().LoadRoom(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		ts := httptest.NewServer(srv.Handler())
		defer ts.Close()
		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/feed/"+strconv.Itoa(id), nil)
		if err != nil {
			t.Fatal(err)
		}
		defer conn.Close()

		messages := make(chan map[string]any, 16)
		go func() {
			defer close(messages)
			for {
				_, b, err := conn.ReadMessage()
				if err != nil {
					return
				}
				m := map[string]any{}
				if err := goccy.Unmarshal(b, &m); err == nil {
					messages <- m
				}
			}
		}()

		entity := &structs.Entity{Kind: structs.PlayerEntity, Username: "alice"}
		if err := r.Do(ctx, func(r *room.Room) error {
			r.Join(entity)
			return nil
		}); err != nil {
			t.Fatal(err)
		}
		// The watch is registered after the upgrade, so keep talking until heard.
		deadline := time.After(10 * time.Second)
		for {
			if err := r.Do(ctx, func(r *room.Room) error {
				r.Say(entity.ID, "hello", false)
				return nil
			}); err != nil {
				t.Fatal(err)
			}
			select {
			case m := <-messages:
				if m["event"] == "tick" || m["event"] == "shortTick" {
					t.Errorf("got quiet event %v", m)
				}
				if m["event"] != "say" {
					continue
				}
				if m["room"] != float64(id) {
					t.Errorf("got %v, want room %v", m, id)
				}
				data, _ := m["data"].(map[string]any)
				if data["message"] != "hello" {
					t.Errorf("got %v, want message hello", m)
				}
			case <-time.After(50 * time.Millisecond):
				continue
			case <-deadline:
				t.Fatal("no say event on the feed")
			}
			break
		}

		srv.Hotel().UnloadRoom(ctx, id)
		for range messages {
		}
	})
}

func TestSSHSession(t *testing.T) {
	withServer(t, func(ctx context.Context, srv *Server) {
		home := createRoom(ctx, t, srv)
		if home != srv.config.HomeRoom {
			t.Fatalf("first room is #%d, want the home room #%d", home, srv.config.HomeRoom)
		}

		sshLn, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		done := make(chan error, 1)
		go func() {
			done <- srv.StartWithListeners(sshLn, nil, nil)
		}()

		client, err := gossh.Dial("tcp", sshLn.Addr().String(), &gossh.ClientConfig{
			User:            "guest",
			HostKeyCallback: gossh.InsecureIgnoreHostKey(),
		})
		if err != nil {
			t.Fatal(err)
		}
		defer client.Close()
		session, err := client.NewSession()
		if err != nil {
			t.Fatal(err)
		}
		defer session.Close()
		out := &lockedBuffer{}
		session.Stdout = out
		session.Stdin = strings.NewReader(strings.Join([]string{
			"create user",
			"alice",
			"secret",
			"secret",
			"y",
			"look",
			"quit",
		}, "\r") + "\r")
		if err := session.Shell(); err != nil {
			t.Fatal(err)
		}
		waitFor(t, "bye", func() bool {
			return strings.Contains(out.String(), "Bye!")
		})
		for _, want := range []string{"Welcome to the hotel!", "Welcome alice!", "lobby (#" + strconv.Itoa(home) + ")"} {
			if !strings.Contains(out.String(), want) {
				t.Errorf("output %q doesn't contain %q", out.String(), want)
			}
		}
		if user, err := srv.Storage().LoadUser(ctx, "alice"); err != nil || !user.Wizard {
			t.Errorf("got %+v, %v, want a wizard", user, err)
		}

		session.Close()
		client.Close()
		if err := srv.Close(); err != nil {
			t.Error(err)
		}
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("serving gave %v", err)
			}
		case <-time.After(15 * time.Second):
			t.Error("server didn't stop")
		}
	})
}
