package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/zond/juiceroom"
	"github.com/zond/juiceroom/server"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	config := server.DefaultConfig()

	flag.StringVar(&config.SSHAddr, "ssh", config.SSHAddr, "Where to listen to SSH connections.")
	flag.StringVar(&config.HTTPAddr, "http", config.HTTPAddr, "Where to serve room feeds over HTTP. Empty disables.")
	flag.StringVar(&config.HTTPSAddr, "https", config.HTTPSAddr, "Where to serve room feeds over HTTPS. Empty disables.")
	flag.StringVar(&config.Hostname, "hostname", config.Hostname, "Hostname of the generated HTTPS certificate.")
	flag.StringVar(&config.Dir, "dir", config.Dir, "Where to save database and settings.")
	flag.StringVar(&config.SQL, "sql", config.SQL, "postgres:// URL of the SQL database. Empty means sqlite in -dir.")
	flag.IntVar(&config.HomeRoom, "home", config.HomeRoom, "Room new users start in.")
	flag.IntVar(&config.MaxCollections, "max_collections", config.MaxCollections, "Max document collections per room. Zero means the storage default.")
	logFile := flag.String("log", "", "File to log to, rotated when large. Empty logs to stderr only.")
	logSize := flag.Int("log_size", 100, "Megabytes before the log is rotated.")
	logBackups := flag.Int("log_backups", 10, "Rotated logs to keep.")

	flag.Parse()

	if *logFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   *logFile,
			MaxSize:    *logSize,
			MaxBackups: *logBackups,
			Compress:   true,
		}
		defer rotator.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	}
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(juiceroom.MakeMainContext(context.Background()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, config)
	if err != nil {
		log.Fatal(err)
	}
	go func() {
		<-ctx.Done()
		log.Printf("Shutting down")
		if err := srv.Close(); err != nil {
			log.Print(err)
		}
	}()
	if err := srv.Start(); err != nil {
		log.Print(err)
		log.Print(juiceroom.StackTrace(err))
		srv.Close()
		os.Exit(1)
	}
}
