package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelgate.ai/internal/persistence/snapshot"
	"voxelgate.ai/internal/sim/transit"
)

// SQLiteIndex mirrors the gate registry, world flags and audit trail into a
// queryable sqlite file. Snapshots stay the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// mu orders enqueues against Close so nothing is sent on a closed channel.
	mu     sync.RWMutex
	closed bool

	dropAudit    atomic.Uint64
	dropSnapshot atomic.Uint64
	dropState    atomic.Uint64
}

type reqKind int

const (
	reqAudit reqKind = iota + 1
	reqSnapshot
	reqState
)

type req struct {
	kind reqKind

	audit    transit.AuditEntry
	snapshot snapshotRow
	state    snapshot.SnapshotV1
}

type snapshotRow struct {
	Tick      uint64
	Path      string
	Gates     int
	Worlds    int
	Travelers int
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int

	DropAuditTotal    uint64
	DropSnapshotTotal uint64
	DropStateTotal    uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS configs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS gates (
			gate_id TEXT PRIMARY KEY,
			world_id TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			axis TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			state TEXT NOT NULL,
			linked_gate_id TEXT NOT NULL,
			ignited_tick INTEGER NOT NULL,
			stabilized_tick INTEGER NOT NULL,
			updated_tick INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_gates_world ON gates(world_id, state);`,
		`CREATE TABLE IF NOT EXISTS world_flags (
			world_id TEXT PRIMARY KEY,
			has_arrived INTEGER NOT NULL,
			is_stabilized INTEGER NOT NULL,
			updated_tick INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			event_id TEXT NOT NULL,
			world_id TEXT NOT NULL,
			action TEXT NOT NULL,
			gate_id TEXT NOT NULL,
			traveler_id TEXT NOT NULL,
			to_world_id TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			reason TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_gate_tick ON audits(gate_id, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_traveler_tick ON audits(traveler_id, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			gates INTEGER NOT NULL,
			worlds INTEGER NOT NULL,
			travelers INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	_, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`)
	return err
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropAuditTotal:    s.dropAudit.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		DropStateTotal:    s.dropState.Load(),
	}
}

// enqueue hands r to the writer without blocking. It reports false when the
// queue is full; requests after Close are silently discarded.
func (s *SQLiteIndex) enqueue(r req) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- r:
		return true
	default:
		return false
	}
}

func (s *SQLiteIndex) WriteAudit(entry transit.AuditEntry) error {
	if s == nil {
		return nil
	}
	if !s.enqueue(req{kind: reqAudit, audit: entry}) {
		// Drop if the indexer falls behind; the JSONL audit log remains the source of truth.
		s.dropAudit.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	r := snapshotRow{
		Tick:   snap.Header.Tick,
		Path:   path,
		Gates:  len(snap.Gates),
		Worlds: len(snap.Worlds),
	}
	for _, w := range snap.Worlds {
		r.Travelers += len(w.Travelers)
	}
	if !s.enqueue(req{kind: reqSnapshot, snapshot: r}) {
		s.dropSnapshot.Add(1)
	}
}

// RecordSnapshotState queues a registry and world-flag mirror of snap.
func (s *SQLiteIndex) RecordSnapshotState(snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	if !s.enqueue(req{kind: reqState, state: snap}) {
		s.dropState.Add(1)
	}
}

// SaveState mirrors the registry and world flags of snap in one transaction.
func (s *SQLiteIndex) SaveState(ctx context.Context, snap snapshot.SnapshotV1) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := writeState(ctx, tx, snap); err != nil {
		return err
	}
	return tx.Commit()
}

func writeState(ctx context.Context, tx *sql.Tx, snap snapshot.SnapshotV1) error {
	tick := int64(snap.Header.Tick)
	// Gates that collapsed since the last save disappear from the mirror.
	if _, err := tx.ExecContext(ctx, `DELETE FROM gates`); err != nil {
		return err
	}
	insGate, err := tx.PrepareContext(ctx, `INSERT INTO gates(gate_id,world_id,x,y,z,axis,width,height,state,linked_gate_id,ignited_tick,stabilized_tick,updated_tick) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer insGate.Close()
	for _, g := range snap.Gates {
		if _, err := insGate.ExecContext(ctx,
			g.ID, g.WorldID,
			g.Anchor[0], g.Anchor[1], g.Anchor[2],
			g.Axis, g.Width, g.Height, g.State, g.LinkedGateID,
			int64(g.IgnitedTick), int64(g.StabilizedTick), tick,
		); err != nil {
			return fmt.Errorf("gate %s: %w", g.ID, err)
		}
	}

	upFlags, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO world_flags(world_id,has_arrived,is_stabilized,updated_tick) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer upFlags.Close()
	for _, f := range snap.WorldFlags {
		if _, err := upFlags.ExecContext(ctx, f.WorldID, boolInt(f.HasArrived), boolInt(f.IsStabilized), tick); err != nil {
			return fmt.Errorf("world flags %s: %w", f.WorldID, err)
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteIndex) LoadGates(ctx context.Context) ([]snapshot.GateV1, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT gate_id,world_id,x,y,z,axis,width,height,state,linked_gate_id,ignited_tick,stabilized_tick FROM gates ORDER BY world_id, gate_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []snapshot.GateV1
	for rows.Next() {
		var g snapshot.GateV1
		var ignited, stabilized int64
		if err := rows.Scan(&g.ID, &g.WorldID, &g.Anchor[0], &g.Anchor[1], &g.Anchor[2], &g.Axis, &g.Width, &g.Height, &g.State, &g.LinkedGateID, &ignited, &stabilized); err != nil {
			return nil, err
		}
		g.IgnitedTick = uint64(ignited)
		g.StabilizedTick = uint64(stabilized)
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) LoadWorldFlags(ctx context.Context) ([]snapshot.WorldFlagsV1, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT world_id,has_arrived,is_stabilized FROM world_flags ORDER BY world_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []snapshot.WorldFlagsV1
	for rows.Next() {
		var f snapshot.WorldFlagsV1
		var arrived, stabilized int
		if err := rows.Scan(&f.WorldID, &arrived, &stabilized); err != nil {
			return nil, err
		}
		f.HasArrived = arrived != 0
		f.IsStabilized = stabilized != 0
		out = append(out, f)
	}
	return out, rows.Err()
}

// AuditQuery filters QueryAudits. Empty fields match everything.
type AuditQuery struct {
	GateID     string
	TravelerID string
	Action     string
	Limit      int
}

// QueryAudits returns matching entries, newest first.
func (s *SQLiteIndex) QueryAudits(ctx context.Context, q AuditQuery) ([]transit.AuditEntry, error) {
	limit := q.Limit
	if limit <= 0 || limit > 10000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT raw_json FROM audits
		WHERE (?1 = '' OR gate_id = ?1)
		  AND (?2 = '' OR traveler_id = ?2)
		  AND (?3 = '' OR action = ?3)
		ORDER BY tick DESC, seq DESC LIMIT ?4`, q.GateID, q.TravelerID, q.Action, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []transit.AuditEntry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e transit.AuditEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertConfig stores the canonical JSON of an applied config with its sha256 digest.
func (s *SQLiteIndex) UpsertConfig(name string, v any) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	_, err = s.db.Exec(`INSERT OR REPLACE INTO configs(name,digest,json,updated_at) VALUES(?,?,?,?)`,
		name, hex.EncodeToString(sum[:]), string(b), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// ConfigDigest returns the stored digest for name, or "" when none is stored.
func (s *SQLiteIndex) ConfigDigest(name string) (string, error) {
	var d string
	err := s.db.QueryRow(`SELECT digest FROM configs WHERE name = ?`, name).Scan(&d)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return d, err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(tick,seq,event_id,world_id,action,gate_id,traveler_id,to_world_id,x,y,z,reason,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,gates,worlds,travelers) VALUES(?,?,?,?,?)`)
	defer func() {
		if insertAudit != nil {
			_ = insertAudit.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		// An idle queue commits right away so direct readers never wait on the writer.
		if len(s.ch) == 0 || opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			if insertAudit != nil {
				if _, err := tx.Stmt(insertAudit).Exec(
					int64(a.Tick),
					seq,
					a.EventID,
					a.WorldID,
					a.Action,
					a.GateID,
					a.TravelerID,
					a.ToWorldID,
					a.Pos[0], a.Pos[1], a.Pos[2],
					a.Reason,
					string(raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(int64(sn.Tick), sn.Path, sn.Gates, sn.Worlds, sn.Travelers); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqState:
			if err := writeState(ctx, tx, r.state); err != nil {
				rollback()
				continue
			}
			// State rows replace each other; commit so readers see a whole mirror.
			commit()
			continue
		}
		flushIfNeeded()
	}

	commit()
}
