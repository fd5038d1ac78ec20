// SPDX-FileCopyrightText: 2025 The qecho-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// qechod is the qecho daemon: it accepts QUIC connections carrying
// streams and datagrams of text, acknowledges every message, and
// publishes its certificate digest and bound port for discovery.
package main

import (
	"os"
	"os/signal"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/profile"
	log "github.com/sirupsen/logrus"
)

// waitSigint blocks the current thread until a SIGINT appears.
func waitSigint() {
	signalSyn := make(chan os.Signal, 1)
	signalAck := make(chan struct{})

	signal.Notify(signalSyn, os.Interrupt)

	go func() {
		<-signalSyn
		close(signalAck)
	}()

	<-signalAck
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}

	listener, ds, announcer, profiling, err := parseConfig(os.Args[1])
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Fatal("Failed to start up")
	}

	if profiling {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}

	log.WithFields(log.Fields{
		"port":      listener.Port(),
		"discovery": ds.Port(),
	}).Info("Up and running; peers bootstrap from the discovery document")

	waitSigint()
	log.Info("Shutting down..")

	var result *multierror.Error
	result = multierror.Append(result, listener.Close())
	result = multierror.Append(result, ds.Close())
	if announcer != nil {
		announcer.Close()
	}

	if err := result.ErrorOrNil(); err != nil {
		log.WithError(err).Warn("Shutdown produced errors")
	}
}
