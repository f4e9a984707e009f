// Command fake_runtime is a stand-in plugin runtime for blackbox tests. It
// speaks the line-delimited control protocol on stdin/stdout and serves two
// hardcoded plugins.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

type request struct {
	Type       string          `json:"type"`
	ManifestID string          `json:"manifest_id,omitempty"`
	InstanceID string          `json:"instance_id,omitempty"`
	Width      int             `json:"width,omitempty"`
	Height     int             `json:"height,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

var manifests = []map[string]any{
	{
		"id": "com.example.bars", "name": "Bars", "category": "analyzer",
		"version": "1.0.0", "default_size": map[string]int{"w": 300, "h": 200},
	},
	{
		"id": "com.example.scope", "name": "Scope", "category": "scope",
		"version": "1.0.0", "default_size": map[string]int{"w": 400, "h": 300},
	},
}

func main() {
	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 64*1024), 8<<20)
	out := json.NewEncoder(os.Stdout)

	for in.Scan() {
		line := in.Bytes()
		if len(line) == 0 {
			continue
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			respond(out, map[string]any{"type": "error", "message": "bad request"})
			continue
		}
		switch req.Type {
		case "scan":
			respond(out, map[string]any{"type": "scan_result", "count": len(manifests)})
		case "list":
			respond(out, map[string]any{"type": "manifest_list", "manifests": manifests})
		case "create":
			if !known(req.ManifestID) {
				respond(out, map[string]any{"type": "error", "message": "unknown manifest " + req.ManifestID})
				continue
			}
			respond(out, map[string]any{"type": "created", "instance_id": req.InstanceID})
		case "render":
			respond(out, map[string]any{
				"type":        "render_commands",
				"instance_id": req.InstanceID,
				"commands": []map[string]any{
					{"cmd": "clear", "color": "#000000"},
					{"cmd": "fill_rect", "rect": []int{0, 0, req.Width, req.Height}, "color": "#ff0000"},
					{"cmd": "hologram_layer"}, // a kind this host does not know
				},
			})
		case "save":
			respond(out, map[string]any{"type": "save_data", "data": map[string]any{}})
		case "destroy", "set_property", "resize", "load", "reload":
			respond(out, map[string]any{"type": "ok"})
		case "shutdown":
			respond(out, map[string]any{"type": "ok"})
			return
		default:
			respond(out, map[string]any{"type": "error", "message": "unknown message " + req.Type})
		}
	}
}

func known(id string) bool {
	for _, m := range manifests {
		if m["id"] == id {
			return true
		}
	}
	return false
}

func respond(out *json.Encoder, msg map[string]any) {
	if err := out.Encode(msg); err != nil {
		fmt.Fprintln(os.Stderr, "encode:", err)
		os.Exit(1)
	}
}
