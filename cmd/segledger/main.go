// Package main provides the segledger inspection CLI.
//
// Subcommands operate on a configured state backend:
//
//	segledger keys <table>          dump a table's world-state fragments
//	segledger audit <model> <pk>    dump a record's audit trail, newest first
//	segledger seq <table>           print a table's sequence counter
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/segledger/segledger/internal/identity"
	"github.com/segledger/segledger/internal/platform/config"
	"github.com/segledger/segledger/internal/platform/otel"
	"github.com/segledger/segledger/internal/repository"
	"github.com/segledger/segledger/internal/schema"
	"github.com/segledger/segledger/internal/sequence"
	"github.com/segledger/segledger/internal/statestore"
	"github.com/segledger/segledger/internal/statestore/bboltstore"
	"github.com/segledger/segledger/internal/statestore/memory"
	"github.com/segledger/segledger/internal/statestore/sqlitestore"
)

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		config.Exitf("load config: %v", err)
	}

	shutdown, err := otel.Setup(context.Background(), "segledger")
	if err != nil {
		config.Exitf("setup tracing: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "shutdown tracing: %v\n", err)
		}
	}()

	store, err := openStore(cfg)
	if err != nil {
		config.Exitf("open %s backend: %v", cfg.Backend, err)
	}
	defer store.Close()

	ctx, err := callerContext(cfg)
	if err != nil {
		config.Exitf("resolve caller: %v", err)
	}
	switch args[0] {
	case "keys":
		err = runKeys(ctx, store, args[1:])
	case "audit":
		err = runAudit(ctx, store, args[1:])
	case "seq":
		err = runSeq(ctx, store, args[1:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		config.Exitf("%s: %v", args[0], err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: segledger <keys|audit|seq> [args]\n\n")
	fmt.Fprintf(os.Stderr, "  keys <table>         dump a table's world-state fragments\n")
	fmt.Fprintf(os.Stderr, "  audit <model> <pk>   dump a record's audit trail, newest first\n")
	fmt.Fprintf(os.Stderr, "  seq <table>          print a table's sequence counter\n")
}

func openStore(cfg config.Config) (statestore.Store, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil
	case "bbolt":
		return bboltstore.Open(cfg.StatePath)
	case "sqlite":
		return sqlitestore.Open(cfg.StatePath)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// callerContext resolves the invocation's caller identity. A configured
// bearer token takes precedence over the static CallerOrg/CallerID fallback.
func callerContext(cfg config.Config) (context.Context, error) {
	ctx := context.Background()
	if cfg.Token != "" {
		caller, err := identity.ParseToken(cfg.Token, cfg.TokenSecret)
		if err != nil {
			return nil, err
		}
		return identity.WithCaller(ctx, caller), nil
	}

	org := cfg.CallerOrg
	if org == "" {
		org = "local"
	}
	id := cfg.CallerID
	if id == "" {
		id = "segledger-cli"
	}
	return identity.WithCaller(ctx, identity.Caller{ID: id, Org: org}), nil
}

// runKeys prefix-scans one table's world-state fragments and prints each
// record as a key path plus its stored document.
func runKeys(ctx context.Context, store statestore.Store, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: segledger keys <table>")
	}
	records, err := store.Query(ctx, statestore.WorldState, statestore.Query{Table: args[0]})
	if err != nil {
		return err
	}

	out := json.NewEncoder(os.Stdout)
	for _, rec := range records {
		table, attrs, err := statestore.SplitCompositeKey(rec.Key)
		if err != nil {
			return err
		}
		var doc schema.Instance
		if err := json.Unmarshal(rec.Value, &doc); err != nil {
			return err
		}
		line := map[string]any{
			"key": table + "/" + strings.Join(attrs, "/"),
			"doc": doc,
		}
		if err := out.Encode(line); err != nil {
			return err
		}
	}
	return nil
}

func runAudit(ctx context.Context, store statestore.Store, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: segledger audit <model> <pk>")
	}
	repo, err := repository.New(store, schema.NewRegistry())
	if err != nil {
		return err
	}

	out := json.NewEncoder(os.Stdout)
	token := ""
	for {
		trail, err := repo.AuditTrail(ctx, args[0], args[1], 50, token)
		if err != nil {
			return err
		}
		for _, entry := range trail.Entries {
			if err := out.Encode(entry); err != nil {
				return err
			}
		}
		if trail.Done {
			return nil
		}
		token = trail.Bookmark
	}
}

func runSeq(ctx context.Context, store statestore.Store, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: segledger seq <table>")
	}
	value, err := sequence.New(store).Read(ctx, statestore.WorldState, sequence.ID(args[0]))
	if err != nil {
		return err
	}
	fmt.Printf("%s = %d\n", sequence.ID(args[0]), value)
	return nil
}
