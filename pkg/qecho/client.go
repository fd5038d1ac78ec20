// SPDX-FileCopyrightText: 2025 The qecho-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qecho

import (
	"context"
	"fmt"

	"github.com/dtn7/cboring"
	"github.com/quic-go/quic-go"
	log "github.com/sirupsen/logrus"

	"github.com/qecho/qecho-go/pkg/qecho/internal"
)

// Client is the dialer side of the qecho protocol. It does not verify
// the listener's self-signed certificate; pin the digest published via
// discovery if that matters to you.
type Client struct {
	connection quic.Connection
}

// Dial establishes a connection to a qecho listener and negotiates a
// session with the given request.
func Dial(ctx context.Context, address string, request *SessionRequest) (*Client, error) {
	connection, err := quic.DialAddr(ctx, address, internal.GenerateDialerTLSConfig(), internal.GenerateQUICConfig())
	if err != nil {
		return nil, err
	}

	client := &Client{connection: connection}
	if err = client.negotiate(ctx, request); err != nil {
		_ = connection.CloseWithError(internal.PeerError, "handshake failed")
		return nil, err
	}

	log.WithFields(log.Fields{
		"address": address,
		"request": request,
	}).Debug("Session established")

	return client, nil
}

// negotiate opens the first bidirectional stream, sends the session
// request and waits for the listener's verdict.
func (client *Client) negotiate(ctx context.Context, request *SessionRequest) error {
	stream, err := client.connection.OpenStreamSync(ctx)
	if err != nil {
		return internal.NewHandshakeError("error during stream initiation", internal.ConnectionError, err)
	}

	if err = cboring.Marshal(request, stream); err != nil {
		return internal.NewHandshakeError("error sending session request", internal.ConnectionError, err)
	}

	status, err := cboring.ReadUInt(stream)
	if err != nil {
		return internal.NewHandshakeError("error reading session status", internal.ConnectionError, err)
	}
	if status != SessionAccepted {
		return internal.NewHandshakeError(fmt.Sprintf("session rejected with status %d", status), internal.PeerError, nil)
	}

	return stream.Close()
}

// OpenMessageStream opens a bidirectional stream; each write on it is
// one message and the acknowledgement arrives on the same stream.
func (client *Client) OpenMessageStream(ctx context.Context) (quic.Stream, error) {
	return client.connection.OpenStreamSync(ctx)
}

// SendUniMessage sends one message on a fresh unidirectional stream.
// The acknowledgement arrives on a listener-opened unidirectional
// stream, see AcceptReplyStream.
func (client *Client) SendUniMessage(ctx context.Context, text string) error {
	stream, err := client.connection.OpenUniStreamSync(ctx)
	if err != nil {
		return err
	}

	if _, err = stream.Write([]byte(text)); err != nil {
		stream.CancelWrite(internal.StreamTransmissionError)
		return err
	}

	return stream.Close()
}

// AcceptReplyStream waits for a unidirectional stream opened by the listener.
func (client *Client) AcceptReplyStream(ctx context.Context) (quic.ReceiveStream, error) {
	return client.connection.AcceptUniStream(ctx)
}

// SendDatagram sends one message as an unreliable datagram.
func (client *Client) SendDatagram(text string) error {
	return client.connection.SendDatagram([]byte(text))
}

// ReceiveDatagram waits for a datagram from the listener.
func (client *Client) ReceiveDatagram(ctx context.Context) (string, error) {
	datagram, err := client.connection.ReceiveDatagram(ctx)
	if err != nil {
		return "", err
	}
	return string(datagram), nil
}

func (client *Client) Close() error {
	return client.connection.CloseWithError(internal.ApplicationShutdown, "client shutting down")
}
