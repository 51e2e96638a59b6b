package certs

import (
	"os/exec"
	"runtime"

	"github.com/gravitational/trace"
)

// IsTrusted probes whether the CA at <dataDir>/certs/ca.pem is already
// present in the OS trust store. It is best-effort: platforms other than
// macOS and Windows always report untrusted.
func IsTrusted(dataDir string) bool {
	if !fileExists(caCertPath(dataDir)) {
		return false
	}

	switch runtime.GOOS {
	case "darwin":
		cmd := exec.Command("security", "find-certificate", "-c", caCommonName,
			"/Library/Keychains/System.keychain")
		return cmd.Run() == nil
	case "windows":
		cmd := exec.Command("certutil", "-user", "-verifystore", "Root", caCommonName)
		return cmd.Run() == nil
	default:
		return false
	}
}

// Install adds the CA certificate to the OS trust store, elevating
// privileges when the platform requires it. Install is idempotent: a
// CA already present is left untouched and reported as success.
func Install(dataDir string) error {
	certPath := caCertPath(dataDir)
	if !fileExists(certPath) {
		return trace.NotFound("CA certificate not found, run EnsureCA first")
	}

	if IsTrusted(dataDir) {
		log.Debug("CA already present in system trust store")
		return nil
	}

	switch runtime.GOOS {
	case "darwin":
		log.Info("installing CA in macOS System Keychain (will prompt for admin)")
		script := `do shell script "security add-trusted-cert -d -r trustRoot -k /Library/Keychains/System.keychain '` +
			certPath + `'" with administrator privileges`
		if out, err := exec.Command("osascript", "-e", script).CombinedOutput(); err != nil {
			return trace.Wrap(err, "installing CA: %s", string(out))
		}
	case "windows":
		log.Info("installing CA in Windows user certificate store")
		if out, err := exec.Command("certutil", "-addstore", "-user", "Root", certPath).CombinedOutput(); err != nil {
			return trace.Wrap(err, "installing CA: %s", string(out))
		}
	default:
		return trace.BadParameter("unsupported OS for CA installation: %s", runtime.GOOS)
	}

	log.Info("CA certificate installed")
	return nil
}
