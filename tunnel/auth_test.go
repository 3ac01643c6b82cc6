package tunnel

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/ssh"
)

// TestBuildAuthMethods_ExplicitKey verifies that a key file is loaded.
func TestBuildAuthMethods_ExplicitKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_test")
	writeTestKey(t, keyPath, nil)

	methods, err := BuildAuthMethods(&SSHConfig{KeyPath: keyPath})
	if err != nil {
		t.Fatalf("BuildAuthMethods: %v", err)
	}
	if len(methods) != 1 {
		t.Fatalf("methods = %d, want 1", len(methods))
	}
}

// TestBuildAuthMethods_EncryptedKey verifies the passphrase prompt is
// used for an encrypted key.
func TestBuildAuthMethods_EncryptedKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_enc")
	writeTestKey(t, keyPath, []byte("hunter2"))

	prompts := 0
	stubSecret(t, func(string) ([]byte, error) {
		prompts++
		return []byte("hunter2"), nil
	})

	if _, err := BuildAuthMethods(&SSHConfig{KeyPath: keyPath}); err != nil {
		t.Fatalf("BuildAuthMethods: %v", err)
	}
	if prompts != 1 {
		t.Errorf("prompts = %d, want 1", prompts)
	}
}

func TestBuildAuthMethods_PromptFails(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_enc")
	writeTestKey(t, keyPath, []byte("hunter2"))
	stubSecret(t, func(string) ([]byte, error) { return nil, errors.New("no tty") })

	if _, err := BuildAuthMethods(&SSHConfig{KeyPath: keyPath}); err == nil {
		t.Fatal("expected error when the passphrase cannot be read")
	}
}

// TestBuildAuthMethods_NoMethods verifies a missing key is an error.
func TestBuildAuthMethods_NoMethods(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	_, err := BuildAuthMethods(&SSHConfig{KeyPath: "/nonexistent/key"})
	if err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestBuildAuthMethods_AgentUnset(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	if _, err := BuildAuthMethods(&SSHConfig{UseAgent: true}); err == nil {
		t.Fatal("expected error without SSH_AUTH_SOCK")
	}
}

// TestBuildAuthMethods_PasswordIsLazy checks the password prompt only
// runs when the gateway asks for it.
func TestBuildAuthMethods_PasswordIsLazy(t *testing.T) {
	stubSecret(t, func(string) ([]byte, error) {
		t.Error("prompted while building methods")
		return nil, nil
	})

	methods, err := BuildAuthMethods(&SSHConfig{Host: "gw", Port: 22, PromptPass: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(methods) != 1 {
		t.Errorf("methods = %d, want 1", len(methods))
	}
}

func TestBuildAuthMethods_KeyboardInteractive(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	t.Setenv("HOME", t.TempDir())

	methods, err := BuildAuthMethods(&SSHConfig{AllowKeyboardInteractive: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(methods) != 1 {
		t.Errorf("methods = %d, want 1", len(methods))
	}

	answers, err := emptyAnswers("", "", []string{"a", "b"}, []bool{false, false})
	if err != nil || len(answers) != 2 || answers[0] != "" {
		t.Errorf("emptyAnswers = %q, %v", answers, err)
	}
}

// TestHostKeyCallback_Insecure verifies that InsecureIgnoreHostKey is used
// when StrictHostKey is false.
func TestHostKeyCallback_Insecure(t *testing.T) {
	cb, err := hostKeyCallback(&SSHConfig{StrictHostKey: false})
	if err != nil {
		t.Fatal(err)
	}
	if cb == nil {
		t.Fatal("callback should not be nil")
	}
}

func TestHostKeyCallback_Strict(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}

	kh := filepath.Join(t.TempDir(), "known_hosts")
	line := "gateway.example " + string(ssh.MarshalAuthorizedKey(signer.PublicKey()))
	if err := os.WriteFile(kh, []byte(line), 0600); err != nil {
		t.Fatal(err)
	}

	cb, err := hostKeyCallback(&SSHConfig{StrictHostKey: true, KnownHosts: kh})
	if err != nil {
		t.Fatal(err)
	}
	addr := &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 22}
	if err := cb("gateway.example:22", addr, signer.PublicKey()); err != nil {
		t.Errorf("known key rejected: %v", err)
	}

	_, other, _ := ed25519.GenerateKey(rand.Reader)
	otherSigner, _ := ssh.NewSignerFromKey(other)
	if err := cb("gateway.example:22", addr, otherSigner.PublicKey()); err == nil {
		t.Error("mismatched key accepted")
	}
}

func TestHostKeyCallback_MissingFile(t *testing.T) {
	_, err := hostKeyCallback(&SSHConfig{StrictHostKey: true, KnownHosts: "/nonexistent/known_hosts"})
	if err == nil {
		t.Fatal("expected error for missing known_hosts")
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func stubSecret(t *testing.T, fn func(string) ([]byte, error)) {
	t.Helper()
	orig := readSecret
	readSecret = fn
	t.Cleanup(func() { readSecret = orig })
}

// writeTestKey writes a fresh ed25519 key in OpenSSH format, encrypted
// when passphrase is non-nil.
func writeTestKey(t *testing.T, path string, passphrase []byte) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	var block *pem.Block
	if passphrase != nil {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "test", passphrase)
	} else {
		block, err = ssh.MarshalPrivateKey(priv, "test")
	}
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatal(err)
	}
}
