package sshconn //nolint:testpackage // Testing private methods

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"testing"

	"golang.org/x/crypto/ssh"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers
)

func generateTestKeyPEM(t *testing.T) string {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("failed to marshal test key: %v", err)
	}

	return string(pem.EncodeToMemory(block))
}

func TestAuthMethodsPasswordVariant(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	methods, err := authMethods(Credential{Variant: CredentialPassword, Password: "hunter2"})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(methods).To(HaveLen(2))
}

func TestAuthMethodsUnsupportedVariant(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	_, err := authMethods(Credential{Variant: "bogus"})
	g.Expect(err).To(HaveOccurred())
}

func TestParseSignerRejectsGarbage(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	_, err := parseSigner([]byte("not a key"), "")
	g.Expect(err).To(HaveOccurred())
}

func TestParseSignerParsesValidEd25519Key(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	signer, err := parseSigner([]byte(generateTestKeyPEM(t)), "")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(signer.PublicKey().Type()).To(Equal(ssh.KeyAlgoED25519))
}

func TestPrivateKeyAuthMethodsUsesExplicitKeyOverAgentAndDefaults(t *testing.T) {
	g := NewWithT(t)

	t.Setenv("SSH_AUTH_SOCK", "")

	methods, err := privateKeyAuthMethods(Credential{
		Variant:       CredentialPrivateKey,
		PrivateKeyPEM: []byte(generateTestKeyPEM(t)),
	})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(methods).NotTo(BeEmpty())
}

func TestPrivateKeyAuthMethodsFailsWithNoKeyMaterialAvailable(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	t.Setenv("HOME", t.TempDir())

	g := NewWithT(t)

	_, err := privateKeyAuthMethods(Credential{Variant: CredentialPrivateKey})
	g.Expect(err).To(HaveOccurred())
}
