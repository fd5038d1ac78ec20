// SPDX-FileCopyrightText: 2025 The qecho-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package qecho implements the qecho wire protocol: a QUIC service that
// accepts bidirectional streams, unidirectional streams and datagrams
// carrying UTF-8 text and acknowledges every message with "ACK"
// followed by the received text, sent back on the matching channel kind.
package qecho

import (
	"context"
	"errors"
	"net"

	"github.com/quic-go/quic-go"
	log "github.com/sirupsen/logrus"

	"github.com/qecho/qecho-go/pkg/identity"
	"github.com/qecho/qecho-go/pkg/qecho/internal"
)

// Listener owns the bound UDP socket and accepts incoming sessions.
// Each accepted session is handed to its own supervising goroutine, so
// one misbehaving peer never stalls the accept loop or its siblings.
type Listener struct {
	listenAddress string
	identity      *identity.Identity
	listener      *quic.Listener
}

// NewListener for a listen address and a TLS identity. Use a port of 0
// to let the OS assign one; the bound port is available through Port
// after Start.
func NewListener(listenAddress string, id *identity.Identity) *Listener {
	return &Listener{
		listenAddress: listenAddress,
		identity:      id,
		listener:      nil,
	}
}

// Start binds the listener and begins accepting sessions in the
// background. A bind error is fatal to the whole service and returned
// to the caller; errors on individual sessions are not.
func (listener *Listener) Start() error {
	log.WithField("address", listener.listenAddress).Info("Starting qecho listener")

	lst, err := quic.ListenAddr(listener.listenAddress, internal.GenerateListenerTLSConfig(listener.identity.Certificate()), internal.GenerateQUICConfig())
	if err != nil {
		log.WithError(err).Error("Error creating qecho listener")
		return err
	}

	listener.listener = lst
	go listener.handle()

	return nil
}

// Addr is the bound UDP address.
func (listener *Listener) Addr() net.Addr {
	return listener.listener.Addr()
}

// Port is the bound UDP port, the value advertised through discovery.
func (listener *Listener) Port() int {
	return listener.listener.Addr().(*net.UDPAddr).Port
}

func (listener *Listener) Close() error {
	log.WithField("address", listener.listenAddress).Info("Shutting ourselves down")
	return listener.listener.Close()
}

func (listener *Listener) handle() {
	log.WithField("address", listener.listenAddress).Info("Listening for qecho connections")

	for id := uint64(0); ; id++ {
		connection, err := listener.listener.Accept(context.Background())
		if err != nil {
			if errors.Is(err, quic.ErrServerClosed) {
				log.WithField("address", listener.listenAddress).Info("Shutting this place down")
				return
			}

			log.WithFields(log.Fields{
				"address": listener.listenAddress,
				"error":   err,
			}).Error("Unknown error accepting QUIC connection")
			continue
		}

		log.WithFields(log.Fields{
			"address": listener.listenAddress,
			"peer":    connection.RemoteAddr(),
			"id":      id,
		}).Info("Accepted new connection")

		go supervise(connection, id)
	}
}
