package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/pprof"
	"sort"
	"strconv"
	"time"

	"voxelgate.ai/internal/persistence/indexdb"
	"voxelgate.ai/internal/protocol"
	"voxelgate.ai/internal/sim/multiworld"
	"voxelgate.ai/internal/sim/transit"
	"voxelgate.ai/internal/sim/transit/gate"
	modelpkg "voxelgate.ai/internal/sim/transit/model"
	"voxelgate.ai/internal/sim/world"
	"voxelgate.ai/internal/transport/observer"
	"voxelgate.ai/internal/transport/ws"
)

const maxRequestBody = 64 * 1024

type muxDeps struct {
	mv     *multiworld.Multiverse
	hub    *ws.Server
	idx    *indexdb.SQLiteIndex // nil when the index is disabled
	logger *log.Logger

	enableAdmin bool
	enablePprof bool
}

func buildMux(d muxDeps) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(d))
	mux.HandleFunc("/v1/observe", d.hub.Handler())

	if d.enableAdmin {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", adminOnly(http.MethodGet, stateHandler(d.mv)))
		mux.HandleFunc("/admin/v1/ignite", adminOnly(http.MethodPost, igniteHandler(d.mv)))
		mux.HandleFunc("/admin/v1/stabilize", adminOnly(http.MethodPost, stabilizeHandler(d.mv)))
		mux.HandleFunc("/admin/v1/blocks", adminOnly(http.MethodPost, blocksHandler(d.mv)))
		mux.HandleFunc("/admin/v1/travelers", adminOnly(http.MethodPost, spawnTravelerHandler(d.mv)))
		mux.HandleFunc("/admin/v1/travelers/move", adminOnly(http.MethodPost, moveTravelerHandler(d.mv)))
		mux.HandleFunc("/admin/v1/snapshot", adminOnly(http.MethodPost, snapshotHandler(d.mv)))
		mux.HandleFunc("/admin/v1/audits", adminOnly(http.MethodGet, auditsHandler(d.idx)))
		mux.HandleFunc("/admin/v1/observer/bootstrap", observer.NewServer(d.mv, d.logger).BootstrapHandler())
	} else if d.logger != nil {
		d.logger.Printf("admin endpoints disabled")
	}
	if d.enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func adminOnly(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !observer.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func stateHandler(mv *multiworld.Multiverse) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		st, err := mv.RequestState(ctx)
		if err != nil {
			writeError(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, st)
	}
}

func igniteHandler(mv *multiworld.Multiverse) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		var req protocol.IgniteReq
		if !decodeValidated(rw, r, protocol.SchemaIgniteReq, &req) {
			return
		}
		axis, err := modelpkg.ParseAxis(req.Axis)
		if err != nil {
			writeError(rw, transit.Errorf(protocol.ErrBadRequest, err.Error()))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		g, tick, err := mv.RequestIgnite(ctx, gate.IgniteRequest{
			WorldID: req.WorldID,
			Anchor:  modelpkg.Vec3FromArray(req.Anchor),
			Axis:    axis,
			Width:   req.Width,
			Height:  req.Height,
		})
		if err != nil {
			writeError(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, protocol.IgniteResp{GateID: g.ID, Tick: tick})
	}
}

func stabilizeHandler(mv *multiworld.Multiverse) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		var req protocol.StabilizeReq
		if !decodeValidated(rw, r, protocol.SchemaStabilizeReq, &req) {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		res, tick, err := mv.RequestStabilize(ctx, gate.StabilizeRequest{
			WorldID: req.WorldID,
			ActorID: req.ActorID,
			Near:    modelpkg.Vec3FromArray(req.Near),
		})
		if err != nil {
			writeError(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, protocol.StabilizeResp{GateID: res.GateID, LinkedGateID: res.LinkedGateID, Tick: tick})
	}
}

func blocksHandler(mv *multiworld.Multiverse) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		var req protocol.SetBlocksReq
		if !decodeValidated(rw, r, protocol.SchemaSetBlocksReq, &req) {
			return
		}
		recs := make([]world.BlockRecord, 0, len(req.Blocks))
		for _, p := range req.Blocks {
			kind, err := world.ParseBlockKind(p.Block)
			if err != nil {
				writeError(rw, transit.Errorf(protocol.ErrBadRequest, err.Error()))
				return
			}
			recs = append(recs, world.BlockRecord{Pos: modelpkg.Vec3FromArray(p.Pos), Block: world.Block{Kind: kind}})
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		changed, tick, err := mv.RequestSetBlocks(ctx, req.WorldID, recs)
		if err != nil {
			writeError(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, protocol.SetBlocksResp{Changed: changed, Tick: tick})
	}
}

func spawnTravelerHandler(mv *multiworld.Multiverse) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		var req protocol.SpawnTravelerReq
		if !decodeValidated(rw, r, protocol.SchemaSpawnTravelerReq, &req) {
			return
		}
		t := &modelpkg.Traveler{
			ID:           req.TravelerID,
			Pos:          modelpkg.Vec3FromArray(req.Pos),
			Height:       req.Height,
			Unrestricted: req.Unrestricted,
			VehicleID:    req.VehicleID,
			Passengers:   req.Passengers,
			Inventory:    req.Inventory,
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		tick, err := mv.RequestAddTraveler(ctx, req.WorldID, t)
		if err != nil {
			writeError(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, protocol.TravelerResp{TravelerID: req.TravelerID, WorldID: req.WorldID, Pos: req.Pos, Tick: tick})
	}
}

func moveTravelerHandler(mv *multiworld.Multiverse) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		var req protocol.MoveTravelerReq
		if !decodeValidated(rw, r, protocol.SchemaMoveTravelerReq, &req) {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		worldID, tick, err := mv.RequestMoveTraveler(ctx, req.TravelerID, modelpkg.Vec3FromArray(req.Pos))
		if err != nil {
			writeError(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, protocol.TravelerResp{TravelerID: req.TravelerID, WorldID: worldID, Pos: req.Pos, Tick: tick})
	}
}

func snapshotHandler(mv *multiworld.Multiverse) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		tick, err := mv.RequestSnapshot(ctx)
		if err != nil {
			writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "tick": tick, "error": err.Error()})
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": tick})
	}
}

func auditsHandler(idx *indexdb.SQLiteIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if idx == nil {
			writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "index disabled"})
			return
		}
		q := indexdb.AuditQuery{
			GateID:     r.URL.Query().Get("gate_id"),
			TravelerID: r.URL.Query().Get("traveler_id"),
			Action:     r.URL.Query().Get("action"),
		}
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				writeError(rw, transit.Errorf(protocol.ErrBadRequest, "bad limit"))
				return
			}
			q.Limit = n
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		rows, err := idx.QueryAudits(ctx, q)
		if err != nil {
			writeError(rw, err)
			return
		}
		if rows == nil {
			rows = []transit.AuditEntry{}
		}
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "audits": rows})
	}
}

// decodeValidated reads the body, checks it against the named schema and
// decodes it into dst. It writes the error response itself.
func decodeValidated(rw http.ResponseWriter, r *http.Request, schema string, dst any) bool {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(rw, transit.Errorf(protocol.ErrBadRequest, "read body"))
		return false
	}
	if err := protocol.Validate(schema, raw); err != nil {
		writeError(rw, transit.Errorf(protocol.ErrBadRequest, err.Error()))
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		writeError(rw, transit.Errorf(protocol.ErrBadRequest, err.Error()))
		return false
	}
	return true
}

func statusForCode(code string) int {
	switch code {
	case protocol.ErrBadRequest, protocol.ErrProtoBadRequest:
		return http.StatusBadRequest
	case protocol.ErrWorldNotFound, protocol.ErrGateNotFound, protocol.ErrTravelerNotFound, protocol.ErrNoGateFound:
		return http.StatusNotFound
	case protocol.ErrWorldBusy:
		return http.StatusServiceUnavailable
	case protocol.ErrInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusConflict
	}
}

func writeError(rw http.ResponseWriter, err error) {
	code := transit.CodeOf(err)
	if errors.Is(err, multiworld.ErrStopped) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		code = protocol.ErrWorldBusy
	}
	writeJSON(rw, statusForCode(code), protocol.ErrorMsg{Type: protocol.TypeError, Code: code, Message: err.Error()})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func metricsHandler(d muxDeps) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		st, err := d.mv.RequestState(ctx)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP voxelgate_tick Current multiverse tick.\n")
		fmt.Fprintf(rw, "# TYPE voxelgate_tick gauge\n")
		fmt.Fprintf(rw, "voxelgate_tick %d\n", st.Tick)

		type key struct{ world, state string }
		gates := map[key]int{}
		for _, g := range st.Gates {
			gates[key{g.WorldID, g.State}]++
		}
		keys := make([]key, 0, len(gates))
		for k := range gates {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].world != keys[j].world {
				return keys[i].world < keys[j].world
			}
			return keys[i].state < keys[j].state
		})
		fmt.Fprintf(rw, "# HELP voxelgate_gates Registered gates by world and lifecycle state.\n")
		fmt.Fprintf(rw, "# TYPE voxelgate_gates gauge\n")
		for _, k := range keys {
			fmt.Fprintf(rw, "voxelgate_gates{world=%q,state=%q} %d\n", k.world, k.state, gates[k])
		}

		travelers := map[string]int{}
		for _, t := range st.Travelers {
			travelers[t.WorldID]++
		}
		fmt.Fprintf(rw, "# HELP voxelgate_travelers Travelers present per world.\n")
		fmt.Fprintf(rw, "# TYPE voxelgate_travelers gauge\n")
		for _, w := range st.Worlds {
			fmt.Fprintf(rw, "voxelgate_travelers{world=%q} %d\n", w.WorldID, travelers[w.WorldID])
		}
		fmt.Fprintf(rw, "# HELP voxelgate_world_stabilized Whether a world's transit is stabilized (0/1).\n")
		fmt.Fprintf(rw, "# TYPE voxelgate_world_stabilized gauge\n")
		for _, w := range st.Worlds {
			fmt.Fprintf(rw, "voxelgate_world_stabilized{world=%q} %d\n", w.WorldID, boolMetric(w.IsStabilized))
		}

		fmt.Fprintf(rw, "# HELP voxelgate_observer_sessions Connected notice observers.\n")
		fmt.Fprintf(rw, "# TYPE voxelgate_observer_sessions gauge\n")
		fmt.Fprintf(rw, "voxelgate_observer_sessions %d\n", d.hub.Sessions())
		fmt.Fprintf(rw, "# HELP voxelgate_observer_dropped_total Notices dropped for slow observers.\n")
		fmt.Fprintf(rw, "# TYPE voxelgate_observer_dropped_total counter\n")
		fmt.Fprintf(rw, "voxelgate_observer_dropped_total %d\n", d.hub.Dropped())

		if d.idx != nil {
			s := d.idx.Stats()
			fmt.Fprintf(rw, "# HELP voxelgate_index_queue_depth Current sqlite index queue depth.\n")
			fmt.Fprintf(rw, "# TYPE voxelgate_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "voxelgate_index_queue_depth %d\n", s.QueueDepth)
			fmt.Fprintf(rw, "# HELP voxelgate_index_dropped_total Index writes dropped because the queue was full.\n")
			fmt.Fprintf(rw, "# TYPE voxelgate_index_dropped_total counter\n")
			fmt.Fprintf(rw, "voxelgate_index_dropped_total{kind=%q} %d\n", "audit", s.DropAuditTotal)
			fmt.Fprintf(rw, "voxelgate_index_dropped_total{kind=%q} %d\n", "snapshot", s.DropSnapshotTotal)
			fmt.Fprintf(rw, "voxelgate_index_dropped_total{kind=%q} %d\n", "state", s.DropStateTotal)
		}
	}
}

func boolMetric(b bool) int {
	if b {
		return 1
	}
	return 0
}
