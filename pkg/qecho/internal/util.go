// SPDX-FileCopyrightText: 2025 The qecho-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package internal

import (
	"crypto/tls"
	"time"

	"github.com/quic-go/quic-go"
)

// alpn is the application protocol identifier announced during the TLS handshake.
const alpn = "qecho/1"

// keepAliveInterval keeps idle-but-alive peers from hitting the idle timeout.
const keepAliveInterval = 3 * time.Second

// GenerateListenerTLSConfig builds the listener's TLS config around a
// self-signed certificate, so dialers have to pin its digest or skip
// verification.
func GenerateListenerTLSConfig(certificate tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{certificate},
		NextProtos:   []string{alpn},
		MinVersion:   tls.VersionTLS13,
	}
}

// GenerateDialerTLSConfig generates a bare-bones TLS config for the dialer
// This configuration assumes that the listener is using a self-signed certificate and thus does not verify it
func GenerateDialerTLSConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{alpn},
	}
}

func GenerateQUICConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod:       keepAliveInterval,
		EnableDatagrams:       true,
		MaxIncomingStreams:    2048,
		MaxIncomingUniStreams: 2048,
	}
}
