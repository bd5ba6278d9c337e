package deps

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}

	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
}

func TestHostPort(t *testing.T) {
	cases := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "127.0.0.1:8188", want: "127.0.0.1:8188"},
		{raw: "ws://127.0.0.1:1234", want: "127.0.0.1:1234"},
		{raw: "ws://lm.local", want: "lm.local:80"},
		{raw: "wss://lm.local", want: "lm.local:443"},
		{raw: "http://render.local:8188/prompt", want: "render.local:8188"},
		{raw: "", wantErr: true},
		{raw: "just-a-host", wantErr: true},
		{raw: "ftp://files.local", wantErr: true},
	}
	for _, tc := range cases {
		got, err := HostPort(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("HostPort(%q): expected error, got %q", tc.raw, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("HostPort(%q): %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("HostPort(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestCheckEndpointsReachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	results := CheckEndpoints(context.Background(), []Endpoint{
		{Name: "Reachable", Address: listener.Addr().String()},
	})
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !results[0].Available {
		t.Fatalf("expected endpoint to be reachable, got %#v", results[0])
	}
	if results[0].Command != listener.Addr().String() {
		t.Fatalf("unexpected resolved address: %s", results[0].Command)
	}
}

func TestCheckEndpointsUnreachable(t *testing.T) {
	// Grab a port and close it so the dial is refused.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	results := CheckEndpoints(context.Background(), []Endpoint{
		{Name: "Down", Address: addr},
		{Name: "Invalid", Address: "not a url"},
	})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Available {
		t.Fatal("expected closed port to be unreachable")
	}
	if results[0].Detail == "" {
		t.Fatal("expected detail for unreachable endpoint")
	}
	if results[1].Available {
		t.Fatal("expected invalid address to be unavailable")
	}
}
