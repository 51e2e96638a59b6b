// Package certs implements a local certificate authority: a self-signed
// root persisted once per app-data directory, and a short-lived server
// leaf minted fresh on every launch to cover 127.0.0.1/localhost for
// the XMPP proxy's TLS listener.
package certs

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "certs")

const (
	caKeyBits      = 4096
	leafKeyBits    = 2048
	caValidity     = 10 * 365 * 24 * time.Hour
	leafValidity   = 30 * 24 * time.Hour
	caCommonName   = "Where Is Teemo CA"
	leafCommonName = "Where Is Teemo Proxy"
)

// Material is a PEM-encoded certificate/key pair, persisted or held only
// in memory depending on which operation produced it.
type Material struct {
	CertPEM string
	KeyPEM  string
}

func certsDir(dataDir string) string       { return filepath.Join(dataDir, "certs") }
func caCertPath(dataDir string) string     { return filepath.Join(certsDir(dataDir), "ca.pem") }
func caKeyPath(dataDir string) string      { return filepath.Join(certsDir(dataDir), "ca-key.pem") }
func serverCertPath(dataDir string) string { return filepath.Join(certsDir(dataDir), "server.pem") }
func serverKeyPath(dataDir string) string  { return filepath.Join(certsDir(dataDir), "server-key.pem") }

// EnsureCA loads the persisted CA from <dataDir>/certs/ if present,
// otherwise generates a new self-signed root, persists it, and returns
// it. The CA is never regenerated once it exists; deleting the files is
// the only way to rotate it.
func EnsureCA(dataDir string) (*Material, error) {
	certPath, keyPath := caCertPath(dataDir), caKeyPath(dataDir)

	if fileExists(certPath) && fileExists(keyPath) {
		certPEM, err := os.ReadFile(certPath)
		if err != nil {
			return nil, trace.Wrap(err, "reading CA cert")
		}
		keyPEM, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, trace.Wrap(err, "reading CA key")
		}
		log.Debug("loaded existing CA from disk")
		return &Material{CertPEM: string(certPEM), KeyPEM: string(keyPEM)}, nil
	}

	log.Info("generating new CA certificate")
	ca, err := generateCA()
	if err != nil {
		return nil, trace.Wrap(err)
	}

	if err := os.MkdirAll(certsDir(dataDir), 0700); err != nil {
		return nil, trace.Wrap(err, "creating certs dir")
	}
	if err := os.WriteFile(certPath, []byte(ca.CertPEM), 0644); err != nil {
		return nil, trace.Wrap(err, "writing CA cert")
	}
	if err := os.WriteFile(keyPath, []byte(ca.KeyPEM), 0600); err != nil {
		return nil, trace.Wrap(err, "writing CA key")
	}

	return ca, nil
}

func generateCA() (*Material, error) {
	key, err := rsa.GenerateKey(rand.Reader, caKeyBits)
	if err != nil {
		return nil, trace.Wrap(err, "generating CA key")
	}

	serial, err := newSerial()
	if err != nil {
		return nil, trace.Wrap(err)
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: caCommonName, Organization: []string{"Where Is Teemo"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(caValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		// No MaxPathLen set: an unconstrained CA.
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, trace.Wrap(err, "self-signing CA")
	}

	return &Material{
		CertPEM: encodePEM("CERTIFICATE", der),
		KeyPEM:  encodePEM("RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key)),
	}, nil
}

// IssueServerLeaf mints a fresh keypair and leaf certificate signed by
// ca, covering 127.0.0.1 (as an IP SAN) and localhost (as a DNS SAN),
// with ServerAuth EKU. It overwrites any previously persisted leaf: the
// leaf has no semantic dependence on persistence across launches, it is
// only written to disk for inspection/debugging.
func IssueServerLeaf(ca *Material, dataDir string) (*Material, error) {
	caCert, caKey, err := parseCA(ca)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	leafKey, err := rsa.GenerateKey(rand.Reader, leafKeyBits)
	if err != nil {
		return nil, trace.Wrap(err, "generating leaf key")
	}

	serial, err := newSerial()
	if err != nil {
		return nil, trace.Wrap(err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: leafCommonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(leafValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		// SAN auto-detection follows the textual form: "127.0.0.1"
		// parses as an IP and goes in IPAddresses; "localhost" does
		// not and goes in DNSNames.
		IPAddresses: []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:    []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, caCert, &leafKey.PublicKey, caKey)
	if err != nil {
		return nil, trace.Wrap(err, "signing server leaf")
	}

	leaf := &Material{
		CertPEM: encodePEM("CERTIFICATE", der),
		KeyPEM:  encodePEM("RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(leafKey)),
	}

	if err := os.MkdirAll(certsDir(dataDir), 0700); err != nil {
		return nil, trace.Wrap(err, "creating certs dir")
	}
	if err := os.WriteFile(serverCertPath(dataDir), []byte(leaf.CertPEM), 0644); err != nil {
		return nil, trace.Wrap(err, "writing server cert")
	}
	if err := os.WriteFile(serverKeyPath(dataDir), []byte(leaf.KeyPEM), 0600); err != nil {
		return nil, trace.Wrap(err, "writing server key")
	}

	log.Info("server leaf issued for 127.0.0.1/localhost")
	return leaf, nil
}

func parseCA(ca *Material) (*x509.Certificate, *rsa.PrivateKey, error) {
	certBlock, _ := pem.Decode([]byte(ca.CertPEM))
	if certBlock == nil {
		return nil, nil, trace.BadParameter("no PEM block found in CA certificate")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, nil, trace.Wrap(err, "parsing CA certificate")
	}

	keyBlock, _ := pem.Decode([]byte(ca.KeyPEM))
	if keyBlock == nil {
		return nil, nil, trace.BadParameter("no PEM block found in CA key")
	}
	key, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, nil, trace.Wrap(err, "parsing CA key")
	}

	return cert, key, nil
}

func newSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, trace.Wrap(err, "generating serial number")
	}
	return serial, nil
}

func encodePEM(blockType string, der []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// TLSCertificate converts a Material into a tls.Certificate suitable for
// tls.Config.Certificates, without round-tripping through disk.
func (m *Material) TLSCertificate() (tls.Certificate, error) {
	cert, err := tls.X509KeyPair([]byte(m.CertPEM), []byte(m.KeyPEM))
	if err != nil {
		return tls.Certificate{}, trace.Wrap(err, "parsing leaf keypair")
	}
	return cert, nil
}
