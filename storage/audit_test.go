package storage

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bxcodec/faker/v4"
	"github.com/zond/juiceroom"

	goccy "github.com/goccy/go-json"
)

type auditEntry struct {
	Time      string           `json:"time"`
	SessionID string           `json:"session_id,omitempty"`
	Event     string           `json:"event"`
	Data      goccy.RawMessage `json:"data"`
}

func readAuditLog(t *testing.T, dir string) []auditEntry {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, "audit.log"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("Failed to open audit log: %v", err)
	}
	defer f.Close()

	var entries []auditEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var entry auditEntry
		if err := goccy.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("Failed to parse audit log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}
	return entries
}

func TestAuditUserCreate(t *testing.T) {
	withStorage(t, func(ctx context.Context, s *Storage, dir string) {
		ctx = juiceroom.WithSessionID(ctx, "session-1")
		name := faker.Username()
		if err := s.CreateUser(ctx, &User{Name: name, PasswordHash: "x"}); err != nil {
			t.Fatal(err)
		}
		entries := readAuditLog(t, dir)
		if len(entries) != 1 {
			t.Fatalf("got %v entries, want 1", len(entries))
		}
		entry := entries[0]
		if entry.Event != "USER_CREATE" || entry.SessionID != "session-1" {
			t.Errorf("got %+v", entry)
		}
		if _, err := time.Parse(time.RFC3339Nano, entry.Time); err != nil {
			t.Errorf("time %q: %v", entry.Time, err)
		}
		data := AuditUserCreate{}
		if err := goccy.Unmarshal(entry.Data, &data); err != nil {
			t.Fatal(err)
		}
		if data.User.Name != name || data.User.ID == nil {
			t.Errorf("got %+v", data)
		}
	})
}

func TestAuditRoomEvents(t *testing.T) {
	withStorage(t, func(ctx context.Context, s *Storage, dir string) {
		s.AuditLog(ctx, "ROOM_LOAD", AuditRoomLoad{Caller: SystemRef(), Room: 1, Script: true})
		s.AuditLog(ctx, "SCRIPT_RELOAD", AuditScriptReload{Caller: Ref(1, "wiz"), Room: 1, Bytes: 10})
		s.AuditLog(ctx, "ROOM_UNLOAD", AuditRoomUnload{Caller: SystemRef(), Room: 1})
		entries := readAuditLog(t, dir)
		got := []string{}
		for _, entry := range entries {
			got = append(got, entry.Event)
		}
		want := []string{"ROOM_LOAD", "SCRIPT_RELOAD", "ROOM_UNLOAD"}
		if len(got) != len(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("got %v, want %v", got, want)
			}
		}
		reload := AuditScriptReload{}
		if err := goccy.Unmarshal(entries[1].Data, &reload); err != nil {
			t.Fatal(err)
		}
		if reload.Caller.ID == nil || *reload.Caller.ID != 1 || reload.Bytes != 10 {
			t.Errorf("got %+v", reload)
		}
	})
}
