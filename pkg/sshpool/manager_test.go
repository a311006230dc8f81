package sshpool_test

import (
	"testing"

	"github.com/rs/zerolog"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers

	"github.com/sshbroker/engine/internal/config"
	"github.com/sshbroker/engine/pkg/sshconn"
	"github.com/sshbroker/engine/pkg/sshpool"
)

func TestIsConnectedFalseForUnregisteredSession(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	factory := sshconn.NewFactory(config.Default().Connection, zerolog.Nop())
	manager := sshpool.NewManager(factory, config.Default(), zerolog.Nop())

	g.Expect(manager.IsConnected("unknown-session")).To(BeFalse())
}
