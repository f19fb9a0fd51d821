package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"voxelgate.ai/internal/protocol"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(adminURL(*baseURL, "state"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	printResponse(resp)
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	doPost(adminURL(*baseURL, "snapshot"), nil)
}

func igniteCmd(args []string) {
	fs := flag.NewFlagSet("ignite", flag.ExitOnError)
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
	doPost(adminURL(*baseURL, "ignite"), protocol.IgniteReq{
		WorldID: *worldID,
		Anchor:  a,
		Axis:    strings.ToUpper(strings.TrimSpace(*axis)),
		Width:   *width,
		Height:  *height,
	})
}

func stabilizeCmd(args []string) {
	fs := flag.NewFlagSet("stabilize", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	worldID := fs.String("world", "", "world id (required)")
	actorID := fs.String("actor", "", "traveler performing the action (required; must hold the stabilizer item)")
	near := fs.String("near", "", "position x,y,z near the gate (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" || strings.TrimSpace(*actorID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world or -actor")
		os.Exit(2)
	}
	n, err := parseVec3(*near)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -near:", err)
		os.Exit(2)
	}
	doPost(adminURL(*baseURL, "stabilize"), protocol.StabilizeReq{WorldID: *worldID, ActorID: *actorID, Near: n})
}

// watchCmd streams transit notices until interrupted.
func watchCmd(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	url := fs.String("url", "ws://127.0.0.1:8080/v1/observe", "observer ws url")
	name := fs.String("name", "admin", "observer name")
	worlds := fs.String("worlds", "", "comma-separated world filter (empty = all)")
	_ = fs.Parse(args)

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		os.Exit(1)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ObserverName:    *name,
		Worlds:          splitList(*worlds),
	}
	if err := conn.WriteJSON(hello); err != nil {
		fmt.Fprintln(os.Stderr, "send HELLO:", err)
		os.Exit(1)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil || base.Type != protocol.TypeNotice {
			continue
		}
		var n protocol.NoticeMsg
		if err := json.Unmarshal(msg, &n); err != nil {
			continue
		}
		fmt.Println(formatNotice(n))
	}
}

func formatNotice(n protocol.NoticeMsg) string {
	var b strings.Builder
	fmt.Fprintf(&b, "tick=%d %-15s world=%s", n.Tick, n.Kind, n.WorldID)
	if n.GateID != "" {
		fmt.Fprintf(&b, " gate=%s", n.GateID)
	}
	if n.TravelerID != "" {
		fmt.Fprintf(&b, " traveler=%s", n.TravelerID)
	}
	if n.ToWorldID != "" {
		fmt.Fprintf(&b, " to=%s", n.ToWorldID)
	}
	fmt.Fprintf(&b, " pos=%d,%d,%d", n.Pos[0], n.Pos[1], n.Pos[2])
	if n.Message != "" {
		fmt.Fprintf(&b, " %q", n.Message)
	}
	return b.String()
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func adminURL(base, path string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + "/admin/v1/" + path
}

func doPost(u string, body any) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			fmt.Fprintln(os.Stderr, "encode:", err)
			os.Exit(1)
		}
		rd = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(http.MethodPost, u, rd)
	req.Header.Set("Content-Type", "application/json")
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	printResponse(resp)
}

func printResponse(resp *http.Response) {
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
