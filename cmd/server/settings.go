package main

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// settings holds process options. Flags give the defaults; VG_* environment
// variables override them so containers can configure the server without args.
type settings struct {
	Addr       string `env:"VG_ADDR"`
	DataDir    string `env:"VG_DATA_DIR"`
	WorldsPath string `env:"VG_WORLDS"`
	TuningPath string `env:"VG_TUNING"`
	DisableDB  bool   `env:"VG_DISABLE_DB"`
	Seed       int64  `env:"VG_SEED"`

	SnapshotPath string `env:"VG_SNAPSHOT"`
	LoadLatest   bool   `env:"VG_LOAD_LATEST_SNAPSHOT"`

	EnableAdminHTTP bool `env:"VG_ENABLE_ADMIN_HTTP"`
	EnablePprofHTTP bool `env:"VG_ENABLE_PPROF_HTTP"`
}

func parseSettings(fs *flag.FlagSet, args []string) (settings, error) {
	var s settings
	fs.StringVar(&s.Addr, "addr", ":8080", "http listen address")
	fs.StringVar(&s.DataDir, "data", "./data", "runtime data directory")
	fs.StringVar(&s.WorldsPath, "worlds", "./configs/worlds.yaml", "multiverse config path (empty for the built-in two-world layout)")
	fs.StringVar(&s.TuningPath, "tuning", "./configs/tuning.yaml", "path to tuning.yaml")
	fs.BoolVar(&s.DisableDB, "disable_db", false, "disable the sqlite index (audits, gates, snapshot metadata)")
	fs.Int64Var(&s.Seed, "seed", 1337, "multiverse seed (used only when starting fresh)")
	fs.StringVar(&s.SnapshotPath, "snapshot", "", "path to snapshot to load (optional)")
	fs.BoolVar(&s.LoadLatest, "load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	fs.BoolVar(&s.EnableAdminHTTP, "admin_http", true, "serve loopback-only /admin/v1 endpoints")
	fs.BoolVar(&s.EnablePprofHTTP, "pprof_http", false, "serve /debug/pprof endpoints")
	if err := fs.Parse(args); err != nil {
		return s, err
	}
	if err := env.Parse(&s); err != nil {
		return s, fmt.Errorf("parse env: %w", err)
	}
	return s, nil
}
