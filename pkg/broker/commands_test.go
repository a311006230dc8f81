package broker_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers

	"github.com/sshbroker/engine/internal/config"
	"github.com/sshbroker/engine/pkg/broker"
)

func TestDispatchSFTPStatUnknownConnectionReturnsError(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	e := broker.NewEngine(config.Default(), zerolog.Nop(), nil)

	raw := e.Dispatch(context.Background(), encodeRequest(t, "sftp:stat", map[string]any{
		"connectionId": "sftp-missing",
		"path":         "/etc/hosts",
	}))
	resp := decodeResponse(t, raw)

	g.Expect(resp.OK).To(BeFalse())
	g.Expect(resp.Error).To(ContainSubstring("unknown sftp connection id"))
}

func TestDispatchDownloadCancelUnknownTaskIsNoOp(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	e := broker.NewEngine(config.Default(), zerolog.Nop(), nil)

	raw := e.Dispatch(context.Background(), encodeRequest(t, "download:cancel", map[string]any{"taskId": "no-such-task"}))
	resp := decodeResponse(t, raw)

	g.Expect(resp.OK).To(BeTrue())
}

func TestDispatchDownloadPauseUnknownTaskReturnsError(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	e := broker.NewEngine(config.Default(), zerolog.Nop(), nil)

	raw := e.Dispatch(context.Background(), encodeRequest(t, "download:pause", map[string]any{"taskId": "no-such-task"}))
	resp := decodeResponse(t, raw)

	g.Expect(resp.OK).To(BeFalse())
}
