// SPDX-FileCopyrightText: 2025 The qecho-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qecho

import (
	"context"
	"errors"
	"fmt"
	"io"
	mrand "math/rand"
	"unicode/utf8"

	"github.com/quic-go/quic-go"
	log "github.com/sirupsen/logrus"

	"github.com/qecho/qecho-go/pkg/qecho/internal"
)

// bufferSize is the fixed per-read buffer. One read is one message;
// payloads beyond this limit are truncated without detection, there is
// no framing or reassembly on this wire.
const bufferSize = 65536

// ackPrefix precedes the echoed text on every reply.
const ackPrefix = "ACK"

var errInvalidPayload = errors.New("payload is not valid UTF-8")

// session multiplexes the event sources of one established connection:
// new bidirectional streams, new unidirectional streams, incoming
// datagrams and further reads on already-accepted bidirectional
// streams. Pump goroutines block on the transport and feed a single
// select loop, so events are handled strictly one at a time and two
// replies on the same connection never interleave.
type session struct {
	connection quic.Connection
	id         uint64
	sessionId  uint64
	buffer     []byte
}

func newSession(connection quic.Connection, id uint64) *session {
	return &session{
		connection: connection,
		id:         id,
		// random correlation tag, collisions are acceptable
		sessionId: mrand.Uint64(),
		buffer:    make([]byte, bufferSize),
	}
}

func (session *session) logFields() log.Fields {
	return log.Fields{
		"id":      session.id,
		"session": fmt.Sprintf("%016x", session.sessionId),
	}
}

// streamMessage is one read's worth of data from an open bidirectional stream.
type streamMessage struct {
	stream quic.Stream
	data   []byte
}

// serve runs the multiplexer loop until the connection terminates or an
// unrecoverable I/O or decode error occurs. It always returns a non-nil
// error; a peer-initiated close surfaces as a quic.ApplicationError.
func (session *session) serve() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	biStreams := make(chan quic.Stream)
	uniStreams := make(chan quic.ReceiveStream)
	datagrams := make(chan []byte)
	messages := make(chan streamMessage)
	faults := make(chan error, 1)

	go session.acceptBiStreams(ctx, biStreams, faults)
	go session.acceptUniStreams(ctx, uniStreams, faults)
	go session.receiveDatagrams(ctx, datagrams, faults)

	for {
		select {
		case stream := <-biStreams:
			if err := session.handleBiStream(ctx, stream, messages, faults); err != nil {
				return err
			}

		case message := <-messages:
			if err := session.acknowledgeStream(message.stream, message.data); err != nil {
				return err
			}

		case stream := <-uniStreams:
			if err := session.handleUniStream(stream); err != nil {
				return err
			}

		case datagram := <-datagrams:
			if err := session.handleDatagram(datagram); err != nil {
				return err
			}

		case err := <-faults:
			return err
		}
	}
}

// reportFault hands a pump's error to the select loop unless the
// session is already shutting down.
func (session *session) reportFault(ctx context.Context, faults chan<- error, err error) {
	select {
	case faults <- err:
	case <-ctx.Done():
	}
}

func (session *session) acceptBiStreams(ctx context.Context, streams chan<- quic.Stream, faults chan<- error) {
	for {
		stream, err := session.connection.AcceptStream(ctx)
		if err != nil {
			session.reportFault(ctx, faults, err)
			return
		}

		select {
		case streams <- stream:
		case <-ctx.Done():
			return
		}
	}
}

func (session *session) acceptUniStreams(ctx context.Context, streams chan<- quic.ReceiveStream, faults chan<- error) {
	for {
		stream, err := session.connection.AcceptUniStream(ctx)
		if err != nil {
			session.reportFault(ctx, faults, err)
			return
		}

		select {
		case streams <- stream:
		case <-ctx.Done():
			return
		}
	}
}

func (session *session) receiveDatagrams(ctx context.Context, datagrams chan<- []byte, faults chan<- error) {
	for {
		datagram, err := session.connection.ReceiveDatagram(ctx)
		if err != nil {
			session.reportFault(ctx, faults, err)
			return
		}

		select {
		case datagrams <- datagram:
		case <-ctx.Done():
			return
		}
	}
}

// handleBiStream services a freshly accepted bidirectional stream: the
// first message is read and acknowledged as part of this event, then
// the stream's remaining reads become their own event source, so later
// messages on it are answered in order without blocking other events.
func (session *session) handleBiStream(ctx context.Context, stream quic.Stream, messages chan<- streamMessage, faults chan<- error) error {
	log.WithFields(session.logFields()).Debug("Accepted bidirectional stream")

	n, err := stream.Read(session.buffer)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	if n > 0 {
		if ackErr := session.acknowledgeStream(stream, session.buffer[:n]); ackErr != nil {
			return ackErr
		}
	}

	if errors.Is(err, io.EOF) {
		// peer already finished the stream, nothing left to read
		return nil
	}

	go session.pumpStreamMessages(ctx, stream, messages, faults)
	return nil
}

// pumpStreamMessages reads an open bidirectional stream message by
// message until the peer finishes it.
func (session *session) pumpStreamMessages(ctx context.Context, stream quic.Stream, messages chan<- streamMessage, faults chan<- error) {
	buffer := make([]byte, bufferSize)

	for {
		n, err := stream.Read(buffer)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buffer[:n])

			select {
			case messages <- streamMessage{stream: stream, data: data}:
			case <-ctx.Done():
				return
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				session.reportFault(ctx, faults, err)
			}
			return
		}
	}
}

// acknowledgeStream replies to one bidirectional message on the same
// stream's write half.
func (session *session) acknowledgeStream(stream quic.Stream, data []byte) error {
	text, err := decodeText(data)
	if err != nil {
		return err
	}

	log.WithFields(session.logFields()).WithField("text", text).Info("Received (bi) message")

	_, err = stream.Write([]byte(ackPrefix + text))
	return err
}

// handleUniStream reads one message from an inbound unidirectional
// stream and replies on a fresh outbound one, since the inbound stream
// has no write half.
func (session *session) handleUniStream(stream quic.ReceiveStream) error {
	log.WithFields(session.logFields()).Debug("Accepted unidirectional stream")

	n, err := stream.Read(session.buffer)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if n == 0 {
		return nil
	}

	text, err := decodeText(session.buffer[:n])
	if err != nil {
		return err
	}

	log.WithFields(session.logFields()).WithField("text", text).Info("Received (uni) message")

	reply, err := session.connection.OpenUniStream()
	if err != nil {
		return err
	}

	if _, err = reply.Write([]byte(ackPrefix + text)); err != nil {
		reply.CancelWrite(internal.StreamTransmissionError)
		return err
	}

	return reply.Close()
}

// handleDatagram replies to a datagram with a new datagram.
func (session *session) handleDatagram(datagram []byte) error {
	text, err := decodeText(datagram)
	if err != nil {
		return err
	}

	log.WithFields(session.logFields()).WithField("text", text).Info("Received (dgram) message")

	return session.connection.SendDatagram([]byte(ackPrefix + text))
}

// decodeText interprets one message's bytes as UTF-8 text. A decode
// failure terminates the whole connection, it is not skipped.
func decodeText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errInvalidPayload
	}
	return string(data), nil
}
