package egress

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"sync"
	"time"
)

// CertStore generates and caches per-host TLS leaf certificates signed by a
// single CA, so the proxy can terminate TLS for any host it intercepts
// without a pre-issued certificate per site. Grounded on
// original_source/proxy/addon.py's use of mitmproxy's built-in cert
// authority (request_remote_cert/interception), reimplemented here with
// crypto/tls and crypto/x509 since the corpus carries no MITM-cert library.
type CertStore struct {
	caCert *x509.Certificate
	caKey  *ecdsa.PrivateKey

	mu    sync.RWMutex
	cache map[string]*tls.Certificate
}

// LoadCertStore reads a CA certificate and key from PEM files on disk.
func LoadCertStore(certPath, keyPath string) (*CertStore, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("egress: read CA cert: %w", err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("egress: read CA key: %w", err)
	}

	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return nil, fmt.Errorf("egress: no PEM block found in CA cert %q", certPath)
	}
	caCert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("egress: parse CA cert: %w", err)
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, fmt.Errorf("egress: no PEM block found in CA key %q", keyPath)
	}
	caKey, err := x509.ParseECPrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("egress: parse CA key: %w", err)
	}

	return &CertStore{
		caCert: caCert,
		caKey:  caKey,
		cache:  make(map[string]*tls.Certificate),
	}, nil
}

// LeafFor returns a cached or freshly minted leaf certificate for host,
// valid for both the bare host and as a SAN-matched wildcard-free entry.
func (s *CertStore) LeafFor(host string) (*tls.Certificate, error) {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	s.mu.RLock()
	cached, ok := s.cache[host]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.cache[host]; ok {
		return cached, nil
	}

	leaf, err := s.mintLeaf(host)
	if err != nil {
		return nil, err
	}
	s.cache[host] = leaf
	return leaf, nil
}

func (s *CertStore) mintLeaf(host string) (*tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("egress: generate leaf key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("egress: generate serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: host},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	if ip := net.ParseIP(host); ip != nil {
		template.IPAddresses = []net.IP{ip}
	} else {
		template.DNSNames = []string{host}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, s.caCert, &key.PublicKey, s.caKey)
	if err != nil {
		return nil, fmt.Errorf("egress: sign leaf for %q: %w", host, err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{der, s.caCert.Raw},
		PrivateKey:  key,
	}, nil
}

// TLSConfig returns a *tls.Config whose GetCertificate mints/caches leaves
// keyed by the ClientHello's SNI server name.
func (s *CertStore) TLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			host := hello.ServerName
			if host == "" {
				return nil, fmt.Errorf("egress: ClientHello carries no SNI server name")
			}
			return s.LeafFor(host)
		},
	}
}
