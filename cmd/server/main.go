package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"voxelgate.ai/internal/persistence/indexdb"
	persistlog "voxelgate.ai/internal/persistence/log"
	"voxelgate.ai/internal/persistence/snapshot"
	"voxelgate.ai/internal/protocol"
	"voxelgate.ai/internal/sim/multiworld"
	"voxelgate.ai/internal/sim/transit"
	"voxelgate.ai/internal/sim/tuning"
	"voxelgate.ai/internal/transport/ws"
)

func main() {
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	s, err := parseSettings(flag.CommandLine, os.Args[1:])
	if err != nil {
		logger.Fatalf("settings: %v", err)
	}
	_ = os.MkdirAll(s.DataDir, 0o755)

	mcfg, err := multiworld.Load(strings.TrimSpace(s.WorldsPath))
	if err != nil {
		logger.Fatalf("load worlds config: %v", err)
	}

	tune, err := tuning.Load(s.TuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", s.TuningPath)
		tune = tuning.Defaults()
	}

	// Optional read-model index; the simulation never reads from it.
	var idx *indexdb.SQLiteIndex
	if !s.DisableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(s.DataDir, "index", "voxelgate.sqlite"))
		if err != nil {
			logger.Fatalf("open index db: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertConfig("worlds", mcfg); err != nil {
			logger.Printf("index db upsert worlds config: %v", err)
		}
		if err := idx.UpsertConfig("tuning", tune); err != nil {
			logger.Printf("index db upsert tuning: %v", err)
		}
	}

	mv, err := multiworld.New(mcfg, tune, s.Seed, log.New(os.Stdout, "[multiverse] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		logger.Fatalf("multiverse: %v", err)
	}

	snapshotToLoad := strings.TrimSpace(s.SnapshotPath)
	if snapshotToLoad == "" && s.LoadLatest {
		snapshotToLoad = snapshot.Latest(s.DataDir)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if err := mv.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d gates=%d", filepath.Base(snapshotToLoad), snap.Header.Tick, len(snap.Gates))
	}

	ctx, cancel := signalContext()
	defer cancel()

	hub := ws.NewServer(log.New(os.Stdout, "[observe] ", log.LstdFlags|log.Lmicroseconds))

	auditLog := persistlog.NewAuditLogger(s.DataDir)
	noticeLog := persistlog.NewNoticeLogger(s.DataDir)
	defer auditLog.Close()
	defer noticeLog.Close()
	var auditSink multiworld.AuditLogger = auditLog
	if idx != nil {
		auditSink = multiAuditLogger{a: auditLog, b: idx}
	}
	mv.SetAuditLogger(auditSink)
	mv.SetNoticeSink(func(n protocol.NoticeMsg) {
		hub.Broadcast(n)
		if err := noticeLog.WriteNotice(n); err != nil {
			logger.Printf("notice log: %v", err)
		}
	})

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	mv.SetSnapshotSink(snapCh)
	snapDone := make(chan struct{})
	go func() {
		defer close(snapDone)
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := snapshot.Path(s.DataDir, snap.Header.Tick)
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
					idx.RecordSnapshotState(snap)
				}
			}
		}
	}()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := mv.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("multiverse stopped: %v", err)
		}
	}()

	mux := buildMux(muxDeps{
		mv:          mv,
		hub:         hub,
		idx:         idx,
		logger:      logger,
		enableAdmin: s.EnableAdminHTTP,
		enablePprof: s.EnablePprofHTTP,
	})

	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s worlds=%v default=%s", s.Addr, mv.WorldIDs(), mcfg.DefaultWorldID)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// The deferred closes must not race the tick loop's audit and snapshot writes.
	cancel()
	<-runDone
	<-snapDone
	logger.Printf("stopped at tick=%d", mv.CurrentTick())
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

type multiAuditLogger struct {
	a multiworld.AuditLogger
	b multiworld.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry transit.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}
