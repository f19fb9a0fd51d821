package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"voxelgate.ai/internal/protocol"
)

func blocksCmd(args []string) {
	fs := flag.NewFlagSet("blocks", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	worldID := fs.String("world", "", "world id (required)")
	block := fs.String("block", "SOLID", "block kind (AIR, SOLID or FRAME)")
	at := fs.String("at", "", "cells x,y,z;x,y,z;... (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	cells, err := parseCells(*at)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -at:", err)
		os.Exit(2)
	}
	doPost(adminURL(*baseURL, "blocks"), placements(*worldID, strings.ToUpper(strings.TrimSpace(*block)), cells))
}

// frameCmd builds the frame ring around an interior so it can be ignited.
func frameCmd(args []string) {
	fs := flag.NewFlagSet("frame", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	worldID := fs.String("world", "", "world id (required)")
	anchor := fs.String("anchor", "", "lowest interior cell x,y,z (required)")
	axis := fs.String("axis", "X", "interior axis (X or Z)")
	width := fs.Int("width", 2, "interior width")
	height := fs.Int("height", 3, "interior height")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	a, err := parseVec3(*anchor)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -anchor:", err)
		os.Exit(2)
	}
	cells, err := frameCells(a, *axis, *width, *height)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	doPost(adminURL(*baseURL, "blocks"), placements(*worldID, "FRAME", cells))
}

func spawnCmd(args []string) {
	fs := flag.NewFlagSet("spawn", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	worldID := fs.String("world", "", "world id (required)")
	id := fs.String("id", "", "traveler id (required)")
	pos := fs.String("pos", "", "position x,y,z (required)")
	height := fs.Int("height", 0, "column height (0 = server default)")
	unrestricted := fs.Bool("unrestricted", false, "transit after a single tick of contact")
	inventory := fs.String("inventory", "", "items ITEM:n,ITEM:n")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" || strings.TrimSpace(*id) == "" {
		fmt.Fprintln(os.Stderr, "missing -world or -id")
		os.Exit(2)
	}
	p, err := parseVec3(*pos)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -pos:", err)
		os.Exit(2)
	}
	inv, err := parseInventory(*inventory)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -inventory:", err)
		os.Exit(2)
	}
	doPost(adminURL(*baseURL, "travelers"), protocol.SpawnTravelerReq{
		WorldID:      *worldID,
		TravelerID:   *id,
		Pos:          p,
		Height:       *height,
		Unrestricted: *unrestricted,
		Inventory:    inv,
	})
}

func moveCmd(args []string) {
	fs := flag.NewFlagSet("move", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	id := fs.String("id", "", "traveler id (required)")
	pos := fs.String("pos", "", "position x,y,z (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*id) == "" {
		fmt.Fprintln(os.Stderr, "missing -id")
		os.Exit(2)
	}
	p, err := parseVec3(*pos)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -pos:", err)
		os.Exit(2)
	}
	doPost(adminURL(*baseURL, "travelers/move"), protocol.MoveTravelerReq{TravelerID: *id, Pos: p})
}

func placements(worldID, block string, cells [][3]int) protocol.SetBlocksReq {
	req := protocol.SetBlocksReq{WorldID: worldID, Blocks: make([]protocol.BlockPlacement, 0, len(cells))}
	for _, c := range cells {
		req.Blocks = append(req.Blocks, protocol.BlockPlacement{Pos: c, Block: block})
	}
	return req
}

func parseCells(s string) ([][3]int, error) {
	var out [][3]int
	for _, part := range strings.Split(s, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		v, err := parseVec3(part)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", part, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no cells")
	}
	return out, nil
}

// frameCells lists the ring one cell outside a width x height interior,
// corners included. The interior runs along axis from anchor and up from anchor.Y.
func frameCells(anchor [3]int, axis string, width, height int) ([][3]int, error) {
	var step [3]int
	switch strings.ToUpper(strings.TrimSpace(axis)) {
	case "X":
		step = [3]int{1, 0, 0}
	case "Z":
		step = [3]int{0, 0, 1}
	default:
		return nil, fmt.Errorf("axis must be X or Z")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("width and height must be positive")
	}
	var out [][3]int
	for i := -1; i <= width; i++ {
		for j := -1; j <= height; j++ {
			if i >= 0 && i < width && j >= 0 && j < height {
				continue
			}
			out = append(out, [3]int{anchor[0] + i*step[0], anchor[1] + j, anchor[2] + i*step[2]})
		}
	}
	return out, nil
}

func parseInventory(s string) (map[string]int, error) {
	items := splitList(s)
	if len(items) == 0 {
		return nil, nil
	}
	inv := make(map[string]int, len(items))
	for _, it := range items {
		name, count, ok := strings.Cut(it, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("item %q has no name", it)
		}
		n := 1
		if ok {
			v, err := strconv.Atoi(strings.TrimSpace(count))
			if err != nil || v < 0 {
				return nil, fmt.Errorf("item %q: bad count", it)
			}
			n = v
		}
		inv[name] += n
	}
	return inv, nil
}
