// Package sshconn implements the Connection Factory: dialing, authenticating
// and keeping alive individual SSH connections to a remote session.
package sshconn

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// CredentialVariant identifies which authentication mechanism a Session
// carries. Exactly one of Password or PrivateKey-related fields is
// populated for a given variant.
type CredentialVariant string

// Exported credential variants.
const (
	CredentialPassword   CredentialVariant = "password"
	CredentialPrivateKey CredentialVariant = "private_key"
)

// Credential carries the authentication material for one Session. Only the
// fields relevant to Variant are expected to be populated; the others are
// ignored.
type Credential struct {
	Variant        CredentialVariant `validate:"required,oneof=password private_key"`
	Password       string            `validate:"required_if=Variant password"`
	PrivateKeyPEM  []byte            `validate:"required_if=Variant private_key"`
	Passphrase     string
}

// Session describes a remote endpoint. It is immutable after creation and
// referenced by every other component via its ID.
type Session struct {
	ID                string `validate:"required"`
	Host              string `validate:"required"`
	Port              int    `validate:"required,min=1,max=65535"`
	Username          string `validate:"required"`
	Credential        Credential
	DefaultWorkingDir string
}

var validate = validator.New(validator.WithRequiredStructEnabled()) //nolint:gochecknoglobals // stateless, safe to share

// NewSession constructs a Session, assigning it a fresh ID, and validates
// every required field up front so that invalid sessions never reach the
// dial path.
func NewSession(host string, port int, username string, credential Credential, defaultWorkingDir string) (*Session, error) {
	sess := &Session{
		ID:                uuid.NewString(),
		Host:              host,
		Port:              port,
		Username:          username,
		Credential:        credential,
		DefaultWorkingDir: defaultWorkingDir,
	}

	if err := validate.Struct(sess); err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}

	return sess, nil
}

// Addr formats the host:port dial target for this session.
func (s *Session) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
