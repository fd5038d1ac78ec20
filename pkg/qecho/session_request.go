// SPDX-FileCopyrightText: 2025 The qecho-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qecho

import (
	"fmt"
	"io"
	"strings"

	"github.com/dtn7/cboring"
)

// Session request status codes exchanged on the negotiation stream.
const (
	SessionAccepted uint64 = 0
	SessionRejected uint64 = 1
)

// SessionRequest is the dialer's opening message: the authority it
// believes it is talking to and the path it wants. Both are diagnostic,
// no path-based routing is performed.
type SessionRequest struct {
	Authority string
	Path      string
}

// NewSessionRequest for an authority and path.
func NewSessionRequest(authority, path string) *SessionRequest {
	return &SessionRequest{
		Authority: authority,
		Path:      path,
	}
}

func (request *SessionRequest) String() string {
	return fmt.Sprintf("SessionRequest(%s%s)", request.Authority, request.Path)
}

// Validate performs the syntactic checks a listener applies before
// accepting the session.
func (request *SessionRequest) Validate() error {
	if request.Authority == "" {
		return fmt.Errorf("session request carries an empty authority")
	}
	if !strings.HasPrefix(request.Path, "/") {
		return fmt.Errorf("session request path %q does not start with a slash", request.Path)
	}
	return nil
}

// MarshalCbor writes a SessionRequest as a CBOR array of two text strings.
func (request *SessionRequest) MarshalCbor(w io.Writer) (err error) {
	if err = cboring.WriteArrayLength(2, w); err != nil {
		return
	}

	if err = cboring.WriteTextString(request.Authority, w); err != nil {
		return
	}
	if err = cboring.WriteTextString(request.Path, w); err != nil {
		return
	}

	return
}

// UnmarshalCbor reads a CBOR array back to a SessionRequest.
func (request *SessionRequest) UnmarshalCbor(r io.Reader) (err error) {
	if n, arrErr := cboring.ReadArrayLength(r); arrErr != nil {
		return arrErr
	} else if n != 2 {
		return fmt.Errorf("SessionRequest expected array of length 2, got %d", n)
	}

	if request.Authority, err = cboring.ReadTextString(r); err != nil {
		return
	}
	if request.Path, err = cboring.ReadTextString(r); err != nil {
		return
	}

	return
}
