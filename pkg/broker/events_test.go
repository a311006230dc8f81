package broker_test

import (
	"testing"
	"time"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers

	"github.com/sshbroker/engine/pkg/broker"
	"github.com/sshbroker/engine/pkg/transfer"
)

func TestEventBusPublishProgressDeliversDirectionedChannel(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	bus := broker.NewEventBus(4)
	sub := bus.Subscribe()

	bus.PublishProgress(transfer.ProgressEvent{TaskID: "t1", Direction: transfer.DirectionUpload, Percentage: 42})

	select {
	case ev := <-sub:
		g.Expect(ev.Channel).To(Equal("upload-progress"))
		g.Expect(ev.TaskID).To(Equal("t1"))
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventBusPublishCompletedUsesDownloadChannelByDefault(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	bus := broker.NewEventBus(4)
	sub := bus.Subscribe()

	bus.PublishCompleted(transfer.CompletedEvent{TaskID: "t2", ArtifactPath: "/tmp/x"})

	select {
	case ev := <-sub:
		g.Expect(ev.Channel).To(Equal("download-completed"))
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventBusDropsEventWhenBufferFull(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	bus := broker.NewEventBus(1)

	bus.PublishCancelled(transfer.CancelledEvent{TaskID: "a"})
	bus.PublishCancelled(transfer.CancelledEvent{TaskID: "b"})

	sub := bus.Subscribe()

	select {
	case ev := <-sub:
		g.Expect(ev.TaskID).To(Equal("a"))
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for event")
	}

	select {
	case <-sub:
		t.Fatal("expected no second event, buffer should have dropped it")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestEventBusShellEventsCarryShellID(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	bus := broker.NewEventBus(4)
	sub := bus.Subscribe()

	bus.PublishShellData("shell-1", []byte("hello"))

	select {
	case ev := <-sub:
		g.Expect(ev.Channel).To(Equal("ssh:data:shell-1"))
		g.Expect(ev.ShellID).To(Equal("shell-1"))
		g.Expect(ev.Data).To(Equal([]byte("hello")))
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for event")
	}
}
