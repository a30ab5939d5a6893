// Package server wires storage, the hotel and the game together and serves
// them over SSH and HTTP.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gliderlabs/ssh"
	"github.com/zond/juiceroom"
	"github.com/zond/juiceroom/game"
	"github.com/zond/juiceroom/hotel"
	"github.com/zond/juiceroom/pemfile"
	"github.com/zond/juiceroom/storage"

	gossh "golang.org/x/crypto/ssh"
)

const shutdownTimeout = 10 * time.Second

type Config struct {
	SSHAddr string
	// HTTPAddr and HTTPSAddr serve the room feeds. Empty disables.
	HTTPAddr  string
	HTTPSAddr string
	Hostname  string
	Dir       string
	// SQL is a postgres:// URL. Empty means sqlite in Dir.
	SQL string
	// HomeRoom is where users without a home room of their own start.
	HomeRoom       int
	MaxCollections int
	InboxSize      int
	// KeyBits sizes generated host keys. Zero means the pemfile default.
	KeyBits int
}

func DefaultConfig() Config {
	return Config{
		SSHAddr:  "127.0.0.1:15000",
		HTTPAddr: "127.0.0.1:8080",
		Hostname: "localhost",
		Dir:      filepath.Join(os.Getenv("HOME"), ".juiceroom"),
		HomeRoom: 1,
	}
}

type Server struct {
	config  Config
	keys    *pemfile.Keys
	storage *storage.Storage
	hotel   *hotel.Hotel
	game    *game.Game
	cancel  context.CancelFunc

	mu      sync.Mutex
	closers []func(ctx context.Context) error
	closed  bool
}

func New(ctx context.Context, config Config) (*Server, error) {
	if err := os.MkdirAll(config.Dir, 0700); err != nil {
		return nil, juiceroom.WithStack(err)
	}
	keys, generated, err := pemfile.KeyParams{
		Hostname:      config.Hostname,
		KeyPath:       filepath.Join(config.Dir, "key.pem"),
		SSHPubKeyPath: filepath.Join(config.Dir, "key.pub"),
		HTTPSCertPath: filepath.Join(config.Dir, "cert.pem"),
		Bits:          config.KeyBits,
	}.Ensure()
	if err != nil {
		return nil, err
	}
	if generated {
		log.Printf("Generated server keys in %q", config.Dir)
	}

	ctx, cancel := context.WithCancel(juiceroom.MakeMainContext(ctx))
	store, err := storage.New(ctx, storage.Options{
		Dir:            config.Dir,
		SQL:            config.SQL,
		MaxCollections: config.MaxCollections,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	switchboard := game.NewSwitchboard()
	stats := game.NewScriptStats()
	h := hotel.New(ctx, hotel.Options{
		Storage:   store,
		Console:   switchboard.Writer,
		Stats:     stats,
		InboxSize: config.InboxSize,
	})
	return &Server{
		config:  config,
		keys:    keys,
		storage: store,
		hotel:   h,
		game: game.New(ctx, game.Options{
			Storage:     store,
			Hotel:       h,
			Switchboard: switchboard,
			Stats:       stats,
			HomeRoom:    config.HomeRoom,
		}),
		cancel: cancel,
	}, nil
}

func (s *Server) Storage() *storage.Storage {
	return s.storage
}

func (s *Server) Hotel() *hotel.Hotel {
	return s.hotel
}

func (s *Server) Game() *game.Game {
	return s.game
}

// Start listens on the configured addresses and serves until Close, or
// until a listener fails.
func (s *Server) Start() error {
	listeners := []net.Listener{}
	for _, addr := range []string{s.config.SSHAddr, s.config.HTTPAddr, s.config.HTTPSAddr} {
		if addr == "" {
			listeners = append(listeners, nil)
			continue
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			for _, ln := range listeners {
				if ln != nil {
					ln.Close()
				}
			}
			return juiceroom.WithStack(err)
		}
		listeners = append(listeners, ln)
	}
	return s.StartWithListeners(listeners[0], listeners[1], listeners[2])
}

func (s *Server) register(closer func(ctx context.Context) error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closers = append(s.closers, closer)
	return true
}

// StartWithListeners serves on the given listeners, skipping nil ones.
func (s *Server) StartWithListeners(sshLn, httpLn, httpsLn net.Listener) error {
	servers := 0
	errs := make(chan error, 3)
	if sshLn != nil {
		sshServer := &ssh.Server{
			Handler: s.game.HandleSession,
		}
		sshServer.AddHostKey(s.keys.Signer)
		if s.register(func(ctx context.Context) error { return sshServer.Shutdown(ctx) }) {
			servers++
			go func() {
				log.Printf("Serving SSH on %q with public key %q", sshLn.Addr(), gossh.FingerprintSHA256(s.keys.Signer.PublicKey()))
				errs <- sshServer.Serve(sshLn)
			}()
		}
	}
	if httpLn != nil {
		httpServer := &http.Server{Handler: s.Handler()}
		if s.register(httpServer.Shutdown) {
			servers++
			go func() {
				log.Printf("Serving HTTP on %q", httpLn.Addr())
				errs <- httpServer.Serve(httpLn)
			}()
		}
	}
	if httpsLn != nil {
		httpsServer := &http.Server{
			Handler:   s.Handler(),
			TLSConfig: &tls.Config{Certificates: []tls.Certificate{s.keys.Certificate}},
		}
		if s.register(httpsServer.Shutdown) {
			servers++
			go func() {
				log.Printf("Serving HTTPS on %q", httpsLn.Addr())
				errs <- httpsServer.ServeTLS(httpsLn, "", "")
			}()
		}
	}
	if servers == 0 {
		return juiceroom.WithStack(fmt.Errorf("nothing to serve"))
	}
	var first error
	for i := 0; i < servers; i++ {
		err := <-errs
		if err == ssh.ErrServerClosed || err == http.ErrServerClosed {
			continue
		}
		if first == nil {
			first = juiceroom.WithStack(err)
			go s.Close()
		}
	}
	return first
}

// Close stops the listeners, unloads every room and closes storage.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	closers := s.closers
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	errs := juiceroom.Errs{}
	for _, closer := range closers {
		if err := closer(ctx); err != nil {
			errs = append(errs, juiceroom.WithStack(err))
		}
	}
	s.hotel.Close(ctx)
	if err := s.storage.Close(); err != nil {
		errs = append(errs, err)
	}
	s.cancel()
	if err := errs.Err(); err != nil {
		return fmt.Errorf("closing server: %w", err)
	}
	return nil
}
