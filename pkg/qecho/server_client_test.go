// SPDX-FileCopyrightText: 2025 The qecho-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qecho

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/qecho/qecho-go/pkg/identity"
	"github.com/qecho/qecho-go/pkg/qecho/internal"
)

const testTimeout = 5 * time.Second

func startTestListener(t *testing.T) *Listener {
	t.Helper()

	id, err := identity.SelfSigned()
	if err != nil {
		t.Fatal(err)
	}

	listener := NewListener("127.0.0.1:0", id)
	if err := listener.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = listener.Close() })

	return listener
}

func dialTestClient(t *testing.T, listener *Listener) *Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	client, err := Dial(ctx, fmt.Sprintf("127.0.0.1:%d", listener.Port()), NewSessionRequest("localhost", "/"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return client
}

// readStreamReply performs one read, which by the wire contract is one message.
func readStreamReply(t *testing.T, stream quic.Stream) string {
	t.Helper()

	if err := stream.SetReadDeadline(time.Now().Add(testTimeout)); err != nil {
		t.Fatal(err)
	}

	buffer := make([]byte, bufferSize)
	n, err := stream.Read(buffer)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatal(err)
	}

	return string(buffer[:n])
}

// TestEchoScenario walks one connection through all three channel
// kinds: a bidirectional stream, a datagram and a unidirectional
// stream, each acknowledged on its matching channel kind.
func TestEchoScenario(t *testing.T) {
	listener := startTestListener(t)
	client := dialTestClient(t, listener)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	// bidirectional stream
	stream, err := client.OpenMessageStream(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := stream.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if reply := readStreamReply(t, stream); reply != "ACKhello" {
		t.Errorf("Expected \"ACKhello\", got %q", reply)
	}

	// datagram
	if err := client.SendDatagram("ping"); err != nil {
		t.Fatal(err)
	}
	if reply, err := client.ReceiveDatagram(ctx); err != nil {
		t.Fatal(err)
	} else if reply != "ACKping" {
		t.Errorf("Expected \"ACKping\", got %q", reply)
	}

	// unidirectional stream
	if err := client.SendUniMessage(ctx, "one-way"); err != nil {
		t.Fatal(err)
	}
	replyStream, err := client.AcceptReplyStream(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := replyStream.SetReadDeadline(time.Now().Add(testTimeout)); err != nil {
		t.Fatal(err)
	}
	reply, err := io.ReadAll(replyStream)
	if err != nil {
		t.Fatal(err)
	}
	if string(reply) != "ACKone-way" {
		t.Errorf("Expected \"ACKone-way\", got %q", reply)
	}
}

// TestBidirectionalOrdering sends several messages on the same stream;
// each must be acknowledged exactly once, in send order.
func TestBidirectionalOrdering(t *testing.T) {
	listener := startTestListener(t)
	client := dialTestClient(t, listener)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	stream, err := client.OpenMessageStream(ctx)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		message := fmt.Sprintf("message-%d", i)
		if _, err := stream.Write([]byte(message)); err != nil {
			t.Fatal(err)
		}
		if reply := readStreamReply(t, stream); reply != ackPrefix+message {
			t.Errorf("Expected %q, got %q", ackPrefix+message, reply)
		}
	}
}

// TestConcurrentStreams opens a second bidirectional stream while the
// first one is still in use; both must be serviced.
func TestConcurrentStreams(t *testing.T) {
	listener := startTestListener(t)
	client := dialTestClient(t, listener)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	first, err := client.OpenMessageStream(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.Write([]byte("first")); err != nil {
		t.Fatal(err)
	}
	if reply := readStreamReply(t, first); reply != "ACKfirst" {
		t.Errorf("Expected \"ACKfirst\", got %q", reply)
	}

	second, err := client.OpenMessageStream(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := second.Write([]byte("second")); err != nil {
		t.Fatal(err)
	}
	if reply := readStreamReply(t, second); reply != "ACKsecond" {
		t.Errorf("Expected \"ACKsecond\", got %q", reply)
	}

	// the first stream is still usable after the second was serviced
	if _, err := first.Write([]byte("first-again")); err != nil {
		t.Fatal(err)
	}
	if reply := readStreamReply(t, first); reply != "ACKfirst-again" {
		t.Errorf("Expected \"ACKfirst-again\", got %q", reply)
	}
}

// TestInvalidPayloadIsolation terminates the offending connection and
// leaves an independent connection untouched.
func TestInvalidPayloadIsolation(t *testing.T) {
	listener := startTestListener(t)
	offender := dialTestClient(t, listener)
	bystander := dialTestClient(t, listener)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	if err := offender.SendDatagram(string([]byte{0xff, 0xfe, 0xfd})); err != nil {
		t.Fatal(err)
	}

	// the listener closes the offender's connection with the decode error code
	_, err := offender.ReceiveDatagram(ctx)
	if err == nil {
		t.Fatal("Expected the offending connection to be terminated")
	}
	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) && appErr.ErrorCode != internal.DecodeError {
		t.Errorf("Expected decode error code %d, got %d", internal.DecodeError, appErr.ErrorCode)
	}

	// the bystander's connection still echoes
	if err := bystander.SendDatagram("still-alive"); err != nil {
		t.Fatal(err)
	}
	if reply, err := bystander.ReceiveDatagram(ctx); err != nil {
		t.Fatal(err)
	} else if reply != "ACKstill-alive" {
		t.Errorf("Expected \"ACKstill-alive\", got %q", reply)
	}
}

// TestHandshakeRejection rejects a session request with an empty
// authority without affecting the listener.
func TestHandshakeRejection(t *testing.T) {
	listener := startTestListener(t)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	_, err := Dial(ctx, fmt.Sprintf("127.0.0.1:%d", listener.Port()), NewSessionRequest("", "/"))
	if err == nil {
		t.Fatal("Expected the session to be rejected")
	}

	// the listener still accepts well-formed sessions
	client := dialTestClient(t, listener)
	if err := client.SendDatagram("after-rejection"); err != nil {
		t.Fatal(err)
	}
	if reply, err := client.ReceiveDatagram(ctx); err != nil {
		t.Fatal(err)
	} else if reply != "ACKafter-rejection" {
		t.Errorf("Expected \"ACKafter-rejection\", got %q", reply)
	}
}
