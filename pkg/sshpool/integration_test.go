//go:build integration

package sshpool_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers

	"github.com/sshbroker/engine/internal/config"
	"github.com/sshbroker/engine/pkg/cmdexec"
	"github.com/sshbroker/engine/pkg/sftpcache"
	"github.com/sshbroker/engine/pkg/sshconn"
	"github.com/sshbroker/engine/pkg/sshpool"
)

// newOpenSSHContainer starts a disposable OpenSSH server with password auth
// enabled for the "broker" user, mirroring the fixture layout used by the
// pack's Postgres/Localstack integration suites.
func newOpenSSHContainer(t *testing.T) (host string, port int) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "lscr.io/linuxserver/openssh-server:latest",
		ExposedPorts: []string{"2222/tcp"},
		Env: map[string]string{
			"USER_NAME":             "broker",
			"USER_PASSWORD":         "brokerpass",
			"PASSWORD_ACCESS":       "true",
			"SUDO_ACCESS":           "false",
		},
		WaitingFor: wait.ForListeningPort("2222/tcp").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start openssh-server container: %v", err)
	}

	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	containerHost, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to resolve container host: %v", err)
	}

	mapped, err := container.MappedPort(ctx, "2222")
	if err != nil {
		t.Fatalf("failed to resolve mapped port: %v", err)
	}

	return containerHost, mapped.Int()
}

// TestRegisterAndGetConnectionAgainstRealServer exercises the Connection
// Factory (C1), Pool Manager (C2) and SFTP Client Cache (C5) against a real
// sshd, rather than against the in-memory fakes the rest of the package uses.
func TestRegisterAndGetConnectionAgainstRealServer(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	host, port := newOpenSSHContainer(t)

	cfg := config.Default()
	logger := zerolog.Nop()

	factory := sshconn.NewFactory(cfg.Connection, logger)
	manager := sshpool.NewManager(factory, cfg, logger)

	session, err := sshconn.NewSession(host, port, "broker", sshconn.Credential{
		Variant:  sshconn.CredentialPassword,
		Password: "brokerpass",
	}, "/config")
	g.Expect(err).NotTo(HaveOccurred())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	g.Expect(manager.Register(ctx, session)).To(Succeed())
	defer func() { _ = manager.DisconnectSession(session.ID) }()

	g.Expect(manager.IsConnected(session.ID)).To(BeTrue())

	handle, err := manager.GetConnection(ctx, session.ID, sshpool.ConnectionCommand)
	g.Expect(err).NotTo(HaveOccurred())
	defer handle.Release()

	g.Expect(handle.Conn.Ready()).To(BeTrue())

	executor := cmdexec.NewExecutor(manager, cfg.Command, logger)
	cache := sftpcache.NewCache(manager, executor, cfg.SFTP, logger)

	handleInfo, err := cache.CreateClient(ctx, session.ID)
	g.Expect(err).NotTo(HaveOccurred())
	defer func() { _ = cache.Close(handleInfo.ConnectionID) }()

	entries, err := cache.ReadDir(handleInfo.ConnectionID, "/config", false)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(entries).NotTo(BeEmpty())
}
