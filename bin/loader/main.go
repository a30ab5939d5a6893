package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/zond/juiceroom"
	"github.com/zond/juiceroom/loader"
	"github.com/zond/juiceroom/storage"
)

func main() {
	dir := flag.String("dir", filepath.Join(os.Getenv("HOME"), ".juiceroom"), "Where to save database and settings.")
	sql := flag.String("sql", "", "postgres:// URL of the SQL database. Empty means sqlite in -dir.")
	dataPath := flag.String("data", "", "Path to the JSON dump.")
	doRestore := flag.Bool("restore", false, "XOR 'backup': Whether to load data from the data path to the database.")
	doBackup := flag.Bool("backup", false, "XOR 'restore': Whether to write data from the database to the data path.")

	flag.Parse()

	if *dataPath == "" || (*doRestore == *doBackup) {
		flag.Usage()
		return
	}

	ctx := juiceroom.MakeMainContext(context.Background())

	store, err := storage.New(ctx, storage.Options{Dir: *dir, SQL: *sql})
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	if *doRestore {
		f, err := os.Open(*dataPath)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		d, err := loader.Read(f)
		if err != nil {
			log.Fatal(err)
		}
		if err := loader.Restore(ctx, store, d); err != nil {
			log.Fatal(err)
		}
		log.Printf("Restored %d definitions and %d rooms from %q", len(d.Definitions), len(d.Rooms), *dataPath)
	}
	if *doBackup {
		d, err := loader.Backup(ctx, store)
		if err != nil {
			log.Fatal(err)
		}
		f, err := os.OpenFile(*dataPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
		if err != nil {
			log.Fatal(err)
		}
		if err := loader.Write(f, d); err != nil {
			f.Close()
			log.Fatal(err)
		}
		if err := f.Close(); err != nil {
			log.Fatal(err)
		}
		log.Printf("Wrote %d definitions and %d rooms to %q", len(d.Definitions), len(d.Rooms), *dataPath)
	}
}
