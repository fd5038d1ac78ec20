// SPDX-FileCopyrightText: 2025 The qecho-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package discovery publishes the service's bootstrap data: the
// certificate digest a peer must pin and the port the qecho listener is
// bound to. The primary channel is a small JSON document over plain
// HTTP on a well-known port; an optional multicast announcement covers
// peers on the local network.
package discovery

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// Document is the JSON bootstrap document served to peers.
type Document struct {
	CertDigestBase64 string `json:"cert_digest_base64"`
	DefaultPort      uint16 `json:"default_port"`
}

// Server serves the Document on GET /config.json with permissive
// cross-origin access restricted to GET.
type Server struct {
	router   *mux.Router
	listener net.Listener
	server   *http.Server
	document Document
}

// NewServer binds a TCP listener for the discovery endpoint. A bind
// error here is a startup failure and is returned to the caller.
func NewServer(listenAddress string, document Document) (*Server, error) {
	listener, err := net.Listen("tcp", listenAddress)
	if err != nil {
		return nil, err
	}

	server := &Server{
		router:   mux.NewRouter(),
		listener: listener,
		document: document,
	}

	server.router.HandleFunc("/config.json", server.handleConfig).Methods(http.MethodGet)
	server.server = &http.Server{Handler: server.router}

	return server, nil
}

// Port is the bound TCP port of the discovery endpoint.
func (server *Server) Port() int {
	return server.listener.Addr().(*net.TCPAddr).Port
}

// Start serves the document in the background.
func (server *Server) Start() {
	log.WithFields(log.Fields{
		"address": server.listener.Addr(),
		"digest":  server.document.CertDigestBase64,
		"port":    server.document.DefaultPort,
	}).Info("Publishing discovery document")

	go func() {
		if err := server.server.Serve(server.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Discovery HTTP server failed")
		}
	}()
}

func (server *Server) Close() error {
	return server.server.Close()
}

func (server *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", http.MethodGet)
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(server.document); err != nil {
		log.WithError(err).Warn("Failed to write discovery document")
	}
}
