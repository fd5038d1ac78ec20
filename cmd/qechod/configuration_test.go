// SPDX-FileCopyrightText: 2025 The qecho-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/qecho/qecho-go/pkg/discovery"
	"github.com/qecho/qecho-go/pkg/qecho"
)

const testConfiguration = `
[core]
listen = "127.0.0.1:0"

[logging]
level = "error"

[discovery]
listen = "127.0.0.1:0"
announce = false
`

// TestStartupScenario boots the service from a configuration file,
// fetches the published discovery document and connects to the
// advertised port.
func TestStartupScenario(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "configuration.toml")
	if err := os.WriteFile(filename, []byte(testConfiguration), 0600); err != nil {
		t.Fatal(err)
	}

	listener, ds, announcer, profiling, err := parseConfig(filename)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = listener.Close()
		_ = ds.Close()
	}()

	if announcer != nil {
		t.Error("Announcer should be disabled")
	}
	if profiling {
		t.Error("Profiling should be disabled")
	}
	if listener.Port() == 0 {
		t.Error("Listener port is zero")
	}

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/config.json", ds.Port()))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var document discovery.Document
	if err := json.NewDecoder(resp.Body).Decode(&document); err != nil {
		t.Fatal(err)
	}
	if document.CertDigestBase64 == "" {
		t.Error("Published certificate digest is empty")
	}
	if document.DefaultPort != uint16(listener.Port()) {
		t.Errorf("Published port %d differs from bound port %d", document.DefaultPort, listener.Port())
	}

	// connect using the advertised values
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := qecho.Dial(ctx, fmt.Sprintf("127.0.0.1:%d", document.DefaultPort), qecho.NewSessionRequest("localhost", "/"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = client.Close() }()

	if err := client.SendDatagram("bootstrap"); err != nil {
		t.Fatal(err)
	}
	if reply, err := client.ReceiveDatagram(ctx); err != nil {
		t.Fatal(err)
	} else if reply != "ACKbootstrap" {
		t.Errorf("Expected \"ACKbootstrap\", got %q", reply)
	}
}
