// Command syncbox-stats inspects a local SQLite outbox. By default it prints
// the status counts as JSON; flags trigger one-shot maintenance actions
// instead (clearing completed items, requeueing failed ones, removing a
// single item).
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	_ "modernc.org/sqlite"

	"github.com/velmie/syncbox"
	sqlitestore "github.com/velmie/syncbox/sqlite"
)

const exitUsage = 2

func main() {
	var (
		dbPath         string
		table          string
		listConflicts  bool
		clearCompleted bool
		retryFailed    bool
		removeID       string
		discardID      string
	)

	flag.StringVar(&dbPath, "db", "", "Path to the SQLite outbox database file")
	flag.StringVar(&table, "table", "outbox", "Outbox table name")
	flag.BoolVar(&listConflicts, "conflicts", false, "List conflicted items instead of stats")
	flag.BoolVar(&clearCompleted, "clear-completed", false, "Remove all completed items")
	flag.BoolVar(&retryFailed, "retry-failed", false, "Requeue all failed items with a fresh attempt budget")
	flag.StringVar(&removeID, "remove", "", "Remove the item with this ID regardless of status")
	flag.StringVar(&discardID, "discard", "", "Discard the failed or conflicted item with this ID")
	flag.Parse()

	if dbPath == "" {
		fmt.Fprintln(os.Stderr, "db is required")
		flag.Usage()
		os.Exit(exitUsage)
	}

	if err := run(dbPath, table, listConflicts, clearCompleted, retryFailed, removeID, discardID); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

func run(dbPath, table string, listConflicts, clearCompleted, retryFailed bool, removeID, discardID string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	store, err := sqlitestore.NewStore(db, sqlitestore.WithTable(table))
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	ctx := context.Background()
	if err := store.InitSchema(ctx); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	engine := syncbox.NewEngine(store)

	switch {
	case clearCompleted:
		removed, err := engine.ClearCompleted(ctx)
		if err != nil {
			return fmt.Errorf("clear completed: %w", err)
		}
		fmt.Printf("removed %d completed items\n", removed)
	case retryFailed:
		requeued, err := engine.RetryFailed(ctx)
		if err != nil {
			return fmt.Errorf("retry failed: %w", err)
		}
		fmt.Printf("requeued %d failed items\n", requeued)
	case removeID != "":
		id, err := syncbox.ParseID(removeID)
		if err != nil {
			return fmt.Errorf("parse id: %w", err)
		}
		if err := engine.RemoveItem(ctx, id); err != nil {
			return fmt.Errorf("remove item: %w", err)
		}
		fmt.Printf("removed %s\n", id)
	case discardID != "":
		id, err := syncbox.ParseID(discardID)
		if err != nil {
			return fmt.Errorf("parse id: %w", err)
		}
		if err := engine.Discard(ctx, id); err != nil {
			return fmt.Errorf("discard item: %w", err)
		}
		fmt.Printf("discarded %s\n", id)
	case listConflicts:
		conflicts, err := engine.Conflicts(ctx)
		if err != nil {
			return fmt.Errorf("list conflicts: %w", err)
		}

		return printJSON(conflicts)
	default:
		stats, err := engine.Stats(ctx)
		if err != nil {
			return fmt.Errorf("collect stats: %w", err)
		}

		return printJSON(stats)
	}

	return nil
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}
