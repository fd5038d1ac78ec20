// SPDX-FileCopyrightText: 2025 The qecho-go authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package identity provides the server's self-signed TLS identity.
//
// An Identity is generated once at startup and lives for the process
// lifetime. Peers are expected to pin the certificate's SHA-256 digest,
// published through the discovery document, instead of walking a chain
// of trust.
package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"net"
	"time"
)

// validity of a self-signed certificate. Kept short on purpose, peers
// pin the digest and a restarted server hands out a fresh one anyway.
const validity = 14 * 24 * time.Hour

// DefaultHosts are the subject alternative names used when no explicit
// hosts are requested.
var DefaultHosts = []string{"localhost", "127.0.0.1", "::1"}

// Identity is a self-signed TLS server identity together with the
// SHA-256 digest of its certificate.
type Identity struct {
	certificate tls.Certificate
	digest      [sha256.Size]byte
}

// SelfSigned generates a fresh RSA-backed identity bound to the given
// hostnames or addresses. An empty host list binds DefaultHosts.
func SelfSigned(hosts ...string) (*Identity, error) {
	if len(hosts) == 0 {
		hosts = DefaultHosts
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(validity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, host)
		}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	return &Identity{
		certificate: tlsCert,
		digest:      sha256.Sum256(certDER),
	}, nil
}

// Certificate returns the combined certificate to be offered during the
// TLS handshake.
func (id *Identity) Certificate() tls.Certificate {
	return id.certificate
}

// Digest returns the SHA-256 digest of the certificate's DER encoding.
func (id *Identity) Digest() [sha256.Size]byte {
	return id.digest
}

// DigestBase64 returns the certificate digest in the standard base64
// encoding used by the discovery document.
func (id *Identity) DigestBase64() string {
	return base64.StdEncoding.EncodeToString(id.digest[:])
}
