package sshconn_test

import (
	"testing"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers

	"github.com/sshbroker/engine/pkg/sshconn"
)

func TestNewSessionValidatesRequiredFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		host    string
		port    int
		user    string
		cred    sshconn.Credential
		wantErr bool
	}{
		{
			name: "valid password session",
			host: "example.com", port: 22, user: "alice",
			cred: sshconn.Credential{Variant: sshconn.CredentialPassword, Password: "hunter2"},
		},
		{
			name: "empty host rejected",
			host: "", port: 22, user: "alice",
			cred:    sshconn.Credential{Variant: sshconn.CredentialPassword, Password: "hunter2"},
			wantErr: true,
		},
		{
			name: "port out of range rejected",
			host: "example.com", port: 70000, user: "alice",
			cred:    sshconn.Credential{Variant: sshconn.CredentialPassword, Password: "hunter2"},
			wantErr: true,
		},
		{
			name: "password variant without password rejected",
			host: "example.com", port: 22, user: "alice",
			cred:    sshconn.Credential{Variant: sshconn.CredentialPassword},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			sess, err := sshconn.NewSession(tt.host, tt.port, tt.user, tt.cred, "")
			if tt.wantErr {
				g.Expect(err).To(HaveOccurred())

				return
			}

			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(sess.ID).NotTo(BeEmpty())
			g.Expect(sess.Addr()).To(Equal("example.com:22"))
		})
	}
}
