package multiworld

import (
	"context"
	"errors"
	"time"

	"voxelgate.ai/internal/protocol"
	"voxelgate.ai/internal/sim/transit/gate"
	modelpkg "voxelgate.ai/internal/sim/transit/model"
	"voxelgate.ai/internal/sim/world"
)

// request is work handed to the tick loop; it runs between ticks.
type request struct {
	fn   func(m *Multiverse)
	done chan struct{}
}

var ErrStopped = errors.New("multiverse stopped")

func (m *Multiverse) Run(ctx context.Context) error {
	hz := m.tune.TickRateHz
	if hz <= 0 {
		hz = 20
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	var pending []request
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.stop:
			return nil
		case req := <-m.inbox:
			pending = append(pending, req)
		case <-ticker.C:
			for _, req := range pending {
				req.fn(m)
				close(req.done)
			}
			pending = pending[:0]
			m.StepOnce()
		}
	}
}

func (m *Multiverse) Stop() { close(m.stop) }

// Do runs fn on the tick loop before the next tick and waits for it.
func (m *Multiverse) Do(ctx context.Context, fn func(m *Multiverse)) error {
	req := request{fn: fn, done: make(chan struct{})}
	select {
	case m.inbox <- req:
	case <-m.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.done:
		return nil
	case <-m.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Multiverse) RequestIgnite(ctx context.Context, req gate.IgniteRequest) (g modelpkg.Gate, tick uint64, err error) {
	if derr := m.Do(ctx, func(m *Multiverse) {
		g, err = m.Ignite(req)
		tick = m.tick
	}); derr != nil {
		return modelpkg.Gate{}, 0, derr
	}
	return g, tick, err
}

func (m *Multiverse) RequestStabilize(ctx context.Context, req gate.StabilizeRequest) (res gate.StabilizeResult, tick uint64, err error) {
	if derr := m.Do(ctx, func(m *Multiverse) {
		res, err = m.Stabilize(req)
		tick = m.tick
	}); derr != nil {
		return gate.StabilizeResult{}, 0, derr
	}
	return res, tick, err
}

func (m *Multiverse) RequestAddTraveler(ctx context.Context, worldID string, t *modelpkg.Traveler) (tick uint64, err error) {
	if derr := m.Do(ctx, func(m *Multiverse) {
		err = m.AddTraveler(worldID, t)
		tick = m.tick
	}); derr != nil {
		return 0, derr
	}
	return tick, err
}

func (m *Multiverse) RequestSetBlocks(ctx context.Context, worldID string, recs []world.BlockRecord) (changed int, tick uint64, err error) {
	if derr := m.Do(ctx, func(m *Multiverse) {
		changed, err = m.SetBlocks(worldID, recs)
		tick = m.tick
	}); derr != nil {
		return 0, 0, derr
	}
	return changed, tick, err
}

func (m *Multiverse) RequestMoveTraveler(ctx context.Context, id string, pos modelpkg.Vec3i) (worldID string, tick uint64, err error) {
	if derr := m.Do(ctx, func(m *Multiverse) {
		worldID, err = m.MoveTraveler(id, pos)
		tick = m.tick
	}); derr != nil {
		return "", 0, derr
	}
	return worldID, tick, err
}

func (m *Multiverse) RequestState(ctx context.Context) (resp protocol.StateResp, err error) {
	err = m.Do(ctx, func(m *Multiverse) { resp = m.State() })
	return resp, err
}

// RequestSnapshot hands a snapshot of the current tick to the snapshot sink.
func (m *Multiverse) RequestSnapshot(ctx context.Context) (tick uint64, err error) {
	var ok bool
	if derr := m.Do(ctx, func(m *Multiverse) {
		tick = m.tick
		ok = m.emitSnapshot()
	}); derr != nil {
		return 0, derr
	}
	if !ok {
		return tick, errors.New("snapshot sink unavailable")
	}
	return tick, nil
}
