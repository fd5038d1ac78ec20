// SPDX-FileCopyrightText: 2025 The qecho-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package internal

import "github.com/quic-go/quic-go"

const (
	// UnknownError is the catchall error code for things we didn't foresee
	UnknownError quic.ApplicationErrorCode = 1
	// LocalError designates errors that happen on this machine (like failing to open a reply stream)
	LocalError quic.ApplicationErrorCode = 2
	// ConnectionError designates errors in data transmission
	ConnectionError quic.ApplicationErrorCode = 3
	PeerError       quic.ApplicationErrorCode = 4
	// DecodeError is sent when a peer's payload is not valid UTF-8
	DecodeError quic.ApplicationErrorCode = 5
	// ApplicationShutdown is sent when the process terminates its connections
	ApplicationShutdown quic.ApplicationErrorCode = 6

	StreamTransmissionError quic.StreamErrorCode = 1
)

// HandshakeError is a failure while negotiating a session, carrying the
// application error code the connection was or should be closed with.
type HandshakeError struct {
	Msg   string
	Code  quic.ApplicationErrorCode
	Cause error
}

func NewHandshakeError(message string, code quic.ApplicationErrorCode, cause error) *HandshakeError {
	return &HandshakeError{
		Msg:   message,
		Code:  code,
		Cause: cause,
	}
}

func (err *HandshakeError) Error() string {
	return err.Msg
}

func (err *HandshakeError) Unwrap() error {
	return err.Cause
}
