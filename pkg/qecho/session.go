// SPDX-FileCopyrightText: 2025 The qecho-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qecho

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/dtn7/cboring"
	"github.com/quic-go/quic-go"
	log "github.com/sirupsen/logrus"

	"github.com/qecho/qecho-go/pkg/qecho/internal"
)

const handshakeTimeout = 500 * time.Millisecond

// supervise runs one connection to completion. It never reports an
// error to its caller: every failure is caught here, logged with the
// connection's correlation ids and treated as this connection's normal
// termination. This is the failure-containment boundary between peers.
func supervise(connection quic.Connection, id uint64) {
	request, err := negotiate(connection)
	if err != nil {
		var herr *internal.HandshakeError
		if errors.As(err, &herr) {
			log.WithFields(log.Fields{
				"id":       id,
				"peer":     connection.RemoteAddr(),
				"error":    herr,
				"internal": herr.Unwrap(),
			}).Warn("Handshake failure")
			_ = connection.CloseWithError(herr.Code, herr.Msg)
		} else {
			log.WithFields(log.Fields{
				"id":    id,
				"peer":  connection.RemoteAddr(),
				"error": err,
			}).Error("Non handshake-related error during handshake")
			_ = connection.CloseWithError(internal.LocalError, "Local error")
		}
		return
	}

	session := newSession(connection, id)

	log.WithFields(session.logFields()).WithFields(log.Fields{
		"authority": request.Authority,
		"path":      request.Path,
		"peer":      connection.RemoteAddr(),
	}).Info("New session")

	err = session.serve()

	var netErr net.Error
	var appErr *quic.ApplicationError

	switch {
	case errors.Is(err, errInvalidPayload):
		log.WithFields(session.logFields()).Error("Closing session: payload is not valid UTF-8")
		_ = connection.CloseWithError(internal.DecodeError, "invalid UTF-8 payload")

	case errors.As(err, &appErr):
		log.WithFields(session.logFields()).WithFields(log.Fields{
			"remote":     appErr.Remote,
			"error code": appErr.ErrorCode,
			"error msg":  appErr.ErrorMessage,
		}).Info("Connection to peer closed")

	case errors.As(err, &netErr) && netErr.Timeout():
		log.WithFields(session.logFields()).WithField("error", netErr).Debug("Peer timed out")

	default:
		log.WithFields(session.logFields()).WithField("error", err).Error("Unexpected error terminated the session")
		_ = connection.CloseWithError(internal.ConnectionError, "connection error")
	}

	log.WithFields(session.logFields()).Info("Session finished")
}

// negotiate performs the listener side of the session handshake: the
// dialer opens the first bidirectional stream and sends its session
// request, we validate it and answer with a status code.
func negotiate(connection quic.Connection) (*SessionRequest, error) {
	log.WithField("peer", connection.RemoteAddr()).Debug("Waiting for session request")

	// the dialer has half a second to initiate the handshake
	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()

	stream, err := connection.AcceptStream(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, internal.NewHandshakeError("dialer took too long to initiate handshake", internal.PeerError, err)
		}
		return nil, internal.NewHandshakeError("unanticipated error happened", internal.UnknownError, err)
	}

	request := new(SessionRequest)
	if err = cboring.Unmarshal(request, stream); err != nil {
		return nil, internal.NewHandshakeError("error reading session request", internal.ConnectionError, err)
	}

	if err = request.Validate(); err != nil {
		_ = cboring.WriteUInt(SessionRejected, stream)
		return nil, internal.NewHandshakeError("session request rejected", internal.PeerError, err)
	}

	if err = cboring.WriteUInt(SessionAccepted, stream); err != nil {
		return nil, internal.NewHandshakeError("error sending session status", internal.ConnectionError, err)
	}

	if err = stream.Close(); err != nil {
		return nil, internal.NewHandshakeError("error closing handshake stream", internal.ConnectionError, err)
	}

	return request, nil
}
