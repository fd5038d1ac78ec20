// SPDX-FileCopyrightText: 2025 The qecho-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/schollz/peerdiscovery"
	log "github.com/sirupsen/logrus"
)

const (
	// announceAddress is the multicast IPv4 address used for announcements.
	announceAddress = "224.23.23.23"

	// announcePort is the multicast port used for announcements.
	announcePort = 35039
)

// Announcer periodically multicasts the discovery document on the
// local network, for peers that cannot reach the well-known HTTP port.
type Announcer struct {
	stopChan chan struct{}
}

// NewAnnouncer starts announcing the document every interval.
func NewAnnouncer(document Document, interval time.Duration) (*Announcer, error) {
	payload, err := json.Marshal(document)
	if err != nil {
		return nil, err
	}

	announcer := &Announcer{
		stopChan: make(chan struct{}),
	}

	log.WithFields(log.Fields{
		"interval": interval,
		"address":  announceAddress,
		"port":     announcePort,
	}).Info("Starting multicast announcements")

	settings := peerdiscovery.Settings{
		Limit:            -1,
		Port:             fmt.Sprintf("%d", announcePort),
		MulticastAddress: announceAddress,
		Payload:          payload,
		Delay:            interval,
		TimeLimit:        -1,
		StopChan:         announcer.stopChan,
		AllowSelf:        true,
		IPVersion:        peerdiscovery.IPv4,
	}

	discoverErrChan := make(chan error)
	go func() {
		_, discoverErr := peerdiscovery.Discover(settings)
		discoverErrChan <- discoverErr
	}()

	select {
	case discoverErr := <-discoverErrChan:
		if discoverErr != nil {
			return nil, discoverErr
		}

	case <-time.After(time.Second):
		break
	}

	return announcer, nil
}

// Close this Announcer.
func (announcer *Announcer) Close() {
	announcer.stopChan <- struct{}{}
}
