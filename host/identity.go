package host

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"io"
	"math/big"
	"time"
)

// ALPN is the application protocol negotiated by every netplay connection.
// Hosts speaking a different protocol revision fail the TLS handshake.
const ALPN = "netplay/1"

const identityName = "netplay"

// identity holds the TLS material shared by every host of the process.
type identity struct {
	cert   *tls.Certificate
	server *tls.Config
	client *tls.Config
}

// newIdentity generates a self-signed certificate and the matching client and
// server TLS configurations.
//
// Peers are not authenticated: the certificate only exists because QUIC
// requires TLS, so clients accept any certificate the server presents.
func newIdentity() (*identity, error) {
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		// should not happen
		return nil, fmt.Errorf("failed to generate ECDSA key for self-signed certificate: %w", err)
	}

	rnd := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, rnd); err != nil {
		return nil, err
	}
	sn := new(big.Int).SetBytes(rnd)

	ctpl := &x509.Certificate{
		BasicConstraintsValid: true,
		Version:               1,
		SerialNumber:          sn,

		Issuer:      pkix.Name{CommonName: identityName},
		Subject:     pkix.Name{CommonName: identityName},
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:    []string{identityName},
	}

	now := time.Now()
	ctpl.NotBefore = now.Add(-1 * time.Minute)
	ctpl.NotAfter = now.Add(30 * 24 * time.Hour)

	der, err := x509.CreateCertificate(rand.Reader, ctpl, ctpl, k.Public(), k)
	if err != nil {
		return nil, err
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	cert := &tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  k,
		Leaf:        leaf,
	}

	return &identity{
		cert: cert,
		server: &tls.Config{
			Certificates: []tls.Certificate{*cert},
			NextProtos:   []string{ALPN},
			MinVersion:   tls.VersionTLS13,
		},
		client: &tls.Config{
			InsecureSkipVerify: true,
			NextProtos:         []string{ALPN},
			MinVersion:         tls.VersionTLS13,
		},
	}, nil
}
