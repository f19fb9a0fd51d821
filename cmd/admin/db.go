package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voxelgate.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to <data>/index/voxelgate.sqlite)")
	limit := fs.Int("limit", 20, "result limit")
	gateID := fs.String("gate", "", "gate_id filter (audits)")
	travelerID := fs.String("traveler", "", "traveler_id filter (audits)")
	action := fs.String("action", "", "action filter (audits)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "voxelgate.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	if *limit <= 0 {
		*limit = 20
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch q {
	case "snapshots":
		db, err := sql.Open("sqlite", path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open:", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := printSnapshots(ctx, db, *limit); err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}

	case "gates", "flags", "audits":
		idx, err := indexdb.OpenSQLite(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open:", err)
			os.Exit(1)
		}
		defer idx.Close()
		if err := printIndex(ctx, idx, q, indexdb.AuditQuery{
			GateID:     strings.TrimSpace(*gateID),
			TravelerID: strings.TrimSpace(*travelerID),
			Action:     strings.ToUpper(strings.TrimSpace(*action)),
			Limit:      *limit,
		}); err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want snapshots|gates|flags|audits)")
		os.Exit(2)
	}
}

func printSnapshots(ctx context.Context, db *sql.DB, limit int) error {
	rows, err := db.QueryContext(ctx, `SELECT tick,path,gates,worlds,travelers FROM snapshots ORDER BY tick DESC LIMIT ?`, limit)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var r struct {
			Tick      int64  `json:"tick"`
			Path      string `json:"path"`
			Gates     int    `json:"gates"`
			Worlds    int    `json:"worlds"`
			Travelers int    `json:"travelers"`
		}
		if err := rows.Scan(&r.Tick, &r.Path, &r.Gates, &r.Worlds, &r.Travelers); err != nil {
			return err
		}
		printJSON(r)
	}
	return rows.Err()
}

func printIndex(ctx context.Context, idx *indexdb.SQLiteIndex, q string, aq indexdb.AuditQuery) error {
	switch q {
	case "gates":
		gates, err := idx.LoadGates(ctx)
		if err != nil {
			return err
		}
		for _, g := range gates {
			printJSON(g)
		}
	case "flags":
		flags, err := idx.LoadWorldFlags(ctx)
		if err != nil {
			return err
		}
		for _, f := range flags {
			printJSON(f)
		}
	case "audits":
		rows, err := idx.QueryAudits(ctx, aq)
		if err != nil {
			return err
		}
		for _, e := range rows {
			printJSON(e)
		}
	}
	return nil
}
