package certs

import (
	"crypto/x509"
	"encoding/pem"
	"net"
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureCAGeneratesThenLoads(t *testing.T) {
	dir := t.TempDir()

	ca1, err := EnsureCA(dir)
	if err != nil {
		t.Fatalf("EnsureCA: %v", err)
	}
	if ca1.CertPEM == "" || ca1.KeyPEM == "" {
		t.Fatal("expected non-empty CA material")
	}

	info, err := os.Stat(caKeyPath(dir))
	if err != nil {
		t.Fatalf("stat CA key: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("CA key perms = %v, want 0600", info.Mode().Perm())
	}

	ca2, err := EnsureCA(dir)
	if err != nil {
		t.Fatalf("EnsureCA (reload): %v", err)
	}
	if ca1.CertPEM != ca2.CertPEM || ca1.KeyPEM != ca2.KeyPEM {
		t.Fatal("expected EnsureCA to return the persisted CA unchanged, not regenerate")
	}
}

func TestIssueServerLeafSANs(t *testing.T) {
	dir := t.TempDir()

	ca, err := EnsureCA(dir)
	if err != nil {
		t.Fatalf("EnsureCA: %v", err)
	}

	leaf, err := IssueServerLeaf(ca, dir)
	if err != nil {
		t.Fatalf("IssueServerLeaf: %v", err)
	}

	block, _ := pem.Decode([]byte(leaf.CertPEM))
	if block == nil {
		t.Fatal("leaf cert did not decode as PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parsing leaf cert: %v", err)
	}

	if len(cert.IPAddresses) != 1 || !cert.IPAddresses[0].Equal(net.ParseIP("127.0.0.1")) {
		t.Fatalf("IPAddresses = %v, want [127.0.0.1]", cert.IPAddresses)
	}
	if len(cert.DNSNames) != 1 || cert.DNSNames[0] != "localhost" {
		t.Fatalf("DNSNames = %v, want [localhost]", cert.DNSNames)
	}

	var hasServerAuth bool
	for _, eku := range cert.ExtKeyUsage {
		if eku == x509.ExtKeyUsageServerAuth {
			hasServerAuth = true
		}
	}
	if !hasServerAuth {
		t.Fatal("expected ServerAuth EKU on the leaf")
	}

	roots := x509.NewCertPool()
	caBlock, _ := pem.Decode([]byte(ca.CertPEM))
	caCert, err := x509.ParseCertificate(caBlock.Bytes)
	if err != nil {
		t.Fatalf("parsing CA cert: %v", err)
	}
	roots.AddCert(caCert)

	if _, err := cert.Verify(x509.VerifyOptions{
		DNSName: "localhost",
		Roots:   roots,
	}); err != nil {
		t.Fatalf("leaf did not verify against its CA: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "certs", "server.pem")); err != nil {
		t.Fatalf("expected leaf to be persisted: %v", err)
	}
}

func TestIssueServerLeafRegeneratesEachCall(t *testing.T) {
	dir := t.TempDir()

	ca, err := EnsureCA(dir)
	if err != nil {
		t.Fatalf("EnsureCA: %v", err)
	}

	leaf1, err := IssueServerLeaf(ca, dir)
	if err != nil {
		t.Fatalf("IssueServerLeaf (1): %v", err)
	}
	leaf2, err := IssueServerLeaf(ca, dir)
	if err != nil {
		t.Fatalf("IssueServerLeaf (2): %v", err)
	}

	if leaf1.CertPEM == leaf2.CertPEM {
		t.Fatal("expected a fresh leaf on each call")
	}
}
