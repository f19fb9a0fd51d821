package observer

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"voxelgate.ai/internal/observerproto"
	"voxelgate.ai/internal/protocol"
	"voxelgate.ai/internal/sim/multiworld"
	"voxelgate.ai/internal/sim/tuning"
)

// Source is the part of the multiverse the bootstrap endpoint reads.
type Source interface {
	Config() multiworld.Config
	Tuning() tuning.Tuning
	RequestState(ctx context.Context) (protocol.StateResp, error)
}

type Server struct {
	src Source
	log *log.Logger
}

func NewServer(src Source, logger *log.Logger) *Server {
	return &Server{src: src, log: logger}
}

// Bootstrap assembles the observer manifest from config and a live state read.
func (s *Server) Bootstrap(ctx context.Context) (observerproto.BootstrapResponse, error) {
	cfg := s.src.Config()
	tune := s.src.Tuning()
	st, err := s.src.RequestState(ctx)
	if err != nil {
		return observerproto.BootstrapResponse{}, err
	}

	gatesPerWorld := map[string]int{}
	for _, g := range st.Gates {
		gatesPerWorld[g.WorldID]++
	}
	flags := map[string]protocol.WorldFlagsRef{}
	for _, f := range st.Worlds {
		flags[f.WorldID] = f
	}

	resp := observerproto.BootstrapResponse{
		ProtocolVersion:       observerproto.Version,
		NoticeProtocolVersion: protocol.Version,
		DefaultWorldID:        cfg.DefaultWorldID,
		Tick:                  st.Tick,
		TickRateHz:            tune.TickRateHz,
		Transit: observerproto.TransitParams{
			ChargeTicks:     tune.Transit.ChargeTicks,
			ReentryDistance: tune.Transit.ReentryDistance,
			ReentryTickGap:  tune.Transit.ReentryTickGap,
			StabilizerItem:  tune.Transit.StabilizerItem,
		},
	}
	for _, spec := range cfg.Worlds {
		dest, _ := cfg.Destination(spec.ID)
		f := flags[spec.ID]
		resp.Worlds = append(resp.Worlds, observerproto.WorldManifest{
			WorldID:       spec.ID,
			Type:          spec.Type,
			FloorY:        spec.FloorY,
			BoundaryR:     spec.BoundaryR,
			CoordScale:    spec.CoordScale,
			Governed:      spec.Governed,
			DestinationID: dest,
			HasArrived:    f.HasArrived,
			IsStabilized:  f.IsStabilized,
			Gates:         gatesPerWorld[spec.ID],
		})
	}
	return resp, nil
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		resp, err := s.Bootstrap(ctx)
		if err != nil {
			if s.log != nil {
				s.log.Printf("[observer] bootstrap: %v", err)
			}
			http.Error(rw, "state unavailable", http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func IsLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
