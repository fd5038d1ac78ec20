// SPDX-FileCopyrightText: 2025 The qecho-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/qecho/qecho-go/pkg/discovery"
	"github.com/qecho/qecho-go/pkg/identity"
	"github.com/qecho/qecho-go/pkg/qecho"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Core      coreConf
	Logging   logConf
	Discovery discoveryConf
}

// coreConf describes the Core-configuration block.
type coreConf struct {
	Listen    string   // UDP listen address; defaults to an ephemeral port on localhost
	Hosts     []string // subject alternative names of the TLS identity
	Profiling bool
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// discoveryConf describes the Discovery-configuration block.
type discoveryConf struct {
	Listen   string // HTTP listen address for the discovery document
	Announce bool
	Interval uint // multicast announcement interval in seconds
}

func parseLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}
}

// parseConfig builds the service's components from the given TOML configuration.
func parseConfig(filename string) (listener *qecho.Listener, ds *discovery.Server, announcer *discovery.Announcer, profiling bool, err error) {
	var conf tomlConfig
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	parseLogging(conf.Logging)

	if conf.Core.Listen == "" {
		conf.Core.Listen = "127.0.0.1:0"
	}
	if conf.Discovery.Listen == "" {
		conf.Discovery.Listen = "127.0.0.1:8080"
	}
	if conf.Discovery.Interval == 0 {
		conf.Discovery.Interval = 10
	}

	id, idErr := identity.SelfSigned(conf.Core.Hosts...)
	if idErr != nil {
		err = idErr
		return
	}

	listener = qecho.NewListener(conf.Core.Listen, id)
	if err = listener.Start(); err != nil {
		return
	}

	document := discovery.Document{
		CertDigestBase64: id.DigestBase64(),
		DefaultPort:      uint16(listener.Port()),
	}

	ds, err = discovery.NewServer(conf.Discovery.Listen, document)
	if err != nil {
		_ = listener.Close()
		return
	}
	ds.Start()

	if conf.Discovery.Announce {
		announcer, err = discovery.NewAnnouncer(document, time.Duration(conf.Discovery.Interval)*time.Second)
		if err != nil {
			_ = listener.Close()
			_ = ds.Close()
			return
		}
	}

	profiling = conf.Core.Profiling
	return
}
