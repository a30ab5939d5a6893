package storage

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/zond/juiceroom"

	goccy "github.com/goccy/go-json"
)

// AuditLogger writes security-relevant events to a log file as JSON lines.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
	enc  *goccy.Encoder
}

// AuditRef identifies a user by both ID and name. ID is nil for the system.
type AuditRef struct {
	ID   *int64 `json:"id,omitempty"`
	Name string `json:"name"`
}

func Ref(id int64, name string) AuditRef {
	return AuditRef{ID: &id, Name: name}
}

func SystemRef() AuditRef {
	return AuditRef{Name: "system"}
}

// AuditData is implemented by every typed audit payload.
type AuditData interface {
	auditData()
}

type AuditEntry struct {
	Time      string    `json:"time"`
	SessionID string    `json:"session_id,omitempty"`
	Event     string    `json:"event"`
	Data      AuditData `json:"data"`
}

type AuditUserCreate struct {
	User   AuditRef `json:"user"`
	Remote string   `json:"remote,omitempty"`
}

func (AuditUserCreate) auditData() {}

type AuditUserLogin struct {
	User   AuditRef `json:"user"`
	Remote string   `json:"remote"`
}

func (AuditUserLogin) auditData() {}

type AuditLoginFailed struct {
	User   AuditRef `json:"user"`
	Remote string   `json:"remote"`
}

func (AuditLoginFailed) auditData() {}

type AuditSessionEnd struct {
	User AuditRef `json:"user"`
}

func (AuditSessionEnd) auditData() {}

// AuditRoomLoad is logged when a room starts running.
type AuditRoomLoad struct {
	Caller AuditRef `json:"caller"`
	Room   int      `json:"room"`
	Script bool     `json:"script"`
}

func (AuditRoomLoad) auditData() {}

type AuditRoomUnload struct {
	Caller AuditRef `json:"caller"`
	Room   int      `json:"room"`
}

func (AuditRoomUnload) auditData() {}

// AuditScriptReload is logged when a wizard replaces or reloads a room script.
type AuditScriptReload struct {
	Caller AuditRef `json:"caller"`
	Room   int      `json:"room"`
	Bytes  int      `json:"bytes"`
}

func (AuditScriptReload) auditData() {}

func NewAuditLogger(path string) (*AuditLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, juiceroom.WithStack(err)
	}
	return &AuditLogger{
		file: f,
		enc:  goccy.NewEncoder(f),
	}, nil
}

// Log writes an entry and flushes it to disk.
// Panics if encoding fails, since that means a broken AuditData type.
func (a *AuditLogger) Log(ctx context.Context, event string, data AuditData) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sessionID, _ := juiceroom.SessionID(ctx)
	if err := a.enc.Encode(AuditEntry{
		Time:      time.Now().UTC().Format(time.RFC3339Nano),
		SessionID: sessionID,
		Event:     event,
		Data:      data,
	}); err != nil {
		panic(fmt.Sprintf("audit log encode failed: %v", err))
	}
	if err := a.file.Sync(); err != nil {
		log.Printf("audit log sync failed: %v", err)
	}
}

func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}
