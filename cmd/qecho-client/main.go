// SPDX-FileCopyrightText: 2025 The qecho-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// qecho-client is a small companion tool: it locates a qechod instance
// through its discovery document (or a direct address), sends one
// message over each channel kind and prints the acknowledgements.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/qecho/qecho-go/pkg/discovery"
	"github.com/qecho/qecho-go/pkg/qecho"
)

func resolveFromDiscovery(configURL string) (string, error) {
	resp, err := http.Get(configURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("discovery endpoint answered with status %d", resp.StatusCode)
	}

	var document discovery.Document
	if err := json.NewDecoder(resp.Body).Decode(&document); err != nil {
		return "", err
	}

	parsed, err := url.Parse(configURL)
	if err != nil {
		return "", err
	}

	return net.JoinHostPort(parsed.Hostname(), strconv.Itoa(int(document.DefaultPort))), nil
}

func main() {
	addrFlag := flag.String("addr", "", "server address (host:port); skips discovery")
	discoveryFlag := flag.String("discovery", "http://127.0.0.1:8080/config.json", "discovery document URL")
	messageFlag := flag.String("message", "hello", "text to send")
	flag.Parse()

	address := *addrFlag
	if address == "" {
		resolved, err := resolveFromDiscovery(*discoveryFlag)
		if err != nil {
			log.WithError(err).Fatal("Failed to resolve the server through discovery")
		}
		address = resolved
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := qecho.Dial(ctx, address, qecho.NewSessionRequest(address, "/"))
	if err != nil {
		log.WithError(err).Fatal("Failed to establish a session")
	}
	defer func() { _ = client.Close() }()

	// bidirectional stream
	stream, err := client.OpenMessageStream(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to open a stream")
	}
	if _, err := stream.Write([]byte(*messageFlag)); err != nil {
		log.WithError(err).Fatal("Failed to send on the stream")
	}
	buffer := make([]byte, 65536)
	n, err := stream.Read(buffer)
	if err != nil && !errors.Is(err, io.EOF) {
		log.WithError(err).Fatal("Failed to read the stream reply")
	}
	fmt.Printf("bi:    %s\n", buffer[:n])

	// datagram
	if err := client.SendDatagram(*messageFlag); err != nil {
		log.WithError(err).Fatal("Failed to send a datagram")
	}
	reply, err := client.ReceiveDatagram(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to receive the datagram reply")
	}
	fmt.Printf("dgram: %s\n", reply)

	// unidirectional stream
	if err := client.SendUniMessage(ctx, *messageFlag); err != nil {
		log.WithError(err).Fatal("Failed to send on a unidirectional stream")
	}
	replyStream, err := client.AcceptReplyStream(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to accept the reply stream")
	}
	uniReply, err := io.ReadAll(replyStream)
	if err != nil {
		log.WithError(err).Fatal("Failed to read the reply stream")
	}
	fmt.Printf("uni:   %s\n", uniReply)
}
