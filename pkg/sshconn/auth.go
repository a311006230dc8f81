package sshconn

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// defaultKeyFiles are tried, in order, when a session carries a private-key
// credential without explicit key bytes and no running ssh-agent answers.
var defaultKeyFiles = []string{"id_ed25519", "id_rsa", "id_ecdsa"} //nolint:gochecknoglobals // static lookup table

// authMethods builds the ssh.AuthMethod list for a session's credential.
// Key-based sessions additionally fall back to a running ssh-agent and the
// user's default key files when no explicit key material is supplied, but
// an explicit credential always takes precedence.
func authMethods(cred Credential) ([]ssh.AuthMethod, error) {
	switch cred.Variant {
	case CredentialPassword:
		return []ssh.AuthMethod{
			ssh.Password(cred.Password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = cred.Password
				}

				return answers, nil
			}),
		}, nil
	case CredentialPrivateKey:
		return privateKeyAuthMethods(cred)
	default:
		return nil, fmt.Errorf("unsupported credential variant %q", cred.Variant) //nolint:err113 // dynamic validation message
	}
}

func privateKeyAuthMethods(cred Credential) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if len(cred.PrivateKeyPEM) > 0 {
		signer, err := parseSigner(cred.PrivateKeyPEM, cred.Passphrase)
		if err != nil {
			return nil, err
		}

		methods = append(methods, ssh.PublicKeys(signer))
	}

	if len(methods) == 0 {
		if agentSigners, err := agentAuthMethod(); err == nil {
			methods = append(methods, agentSigners)
		}
	}

	if len(methods) == 0 {
		if signer, err := defaultKeySigner(); err == nil {
			methods = append(methods, ssh.PublicKeys(signer))
		}
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no usable key material: no explicit key, no ssh-agent, no default key files") //nolint:err113,lll // terminal auth-setup failure
	}

	return methods, nil
}

func parseSigner(pemBytes []byte, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(pemBytes, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key with passphrase: %w", err)
		}

		return signer, nil
	}

	signer, err := ssh.ParsePrivateKey(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return signer, nil
}

func agentAuthMethod() (ssh.AuthMethod, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, fmt.Errorf("SSH_AUTH_SOCK not set") //nolint:err113 // no agent available, expected in many environments
	}

	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ssh-agent: %w", err)
	}

	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), nil
}

func defaultKeySigner() (ssh.Signer, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}

	for _, name := range defaultKeyFiles {
		path := filepath.Join(home, ".ssh", name)

		raw, readErr := os.ReadFile(path) //nolint:gosec // path constructed from fixed filenames under the user's home
		if readErr != nil {
			continue
		}

		signer, parseErr := ssh.ParsePrivateKey(raw)
		if parseErr != nil {
			continue
		}

		return signer, nil
	}

	return nil, fmt.Errorf("no default key file found under ~/.ssh") //nolint:err113 // fallback exhausted, caller handles
}
