package sshpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers

	"github.com/sshbroker/engine/pkg/sshconn"
)

func testSession() *sshconn.Session {
	return &sshconn.Session{ID: "sess-1", Host: "example.com", Port: 22, Username: "u"}
}

func countingDialer() (func(ctx context.Context) (*sshconn.Connection, error), *int32) {
	var n int32

	dial := func(_ context.Context) (*sshconn.Connection, error) {
		id := atomic.AddInt32(&n, 1)

		return sshconn.NewConnection(string(rune('a'+id)), "sess-1", nil), nil
	}

	return dial, &n
}

func TestPoolWarmToDialsUpToTarget(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	dial, dials := countingDialer()
	p := newPool(RoleTransfer, testSession(), 1, 5, 50*time.Millisecond, time.Minute, dial)

	g.Expect(p.warmTo(context.Background(), 3)).To(Succeed())
	g.Expect(p.size()).To(Equal(3))
	g.Expect(atomic.LoadInt32(dials)).To(Equal(int32(3)))
}

func TestPoolAcquireReleaseRoundTrip(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	dial, _ := countingDialer()
	p := newPool(RoleShared, testSession(), 1, 2, 50*time.Millisecond, time.Minute, dial)
	g.Expect(p.warmTo(context.Background(), 1)).To(Succeed())

	conn, err := p.acquire(context.Background(), 0)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(conn).NotTo(BeNil())

	p.release(conn)
	g.Expect(p.size()).To(Equal(1))
}

func TestPoolAcquireTimesOutWhenExhausted(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	dial, _ := countingDialer()
	p := newPool(RoleShared, testSession(), 1, 1, 20*time.Millisecond, time.Minute, dial)
	g.Expect(p.warmTo(context.Background(), 1)).To(Succeed())

	conn, err := p.acquire(context.Background(), 0)
	g.Expect(err).NotTo(HaveOccurred())

	_, err = p.acquire(context.Background(), 0)
	g.Expect(err).To(HaveOccurred())

	p.release(conn)
}

func TestPoolResizeScalesDownLazily(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	dial, _ := countingDialer()
	p := newPool(RoleTransfer, testSession(), 1, 5, 50*time.Millisecond, time.Minute, dial)
	g.Expect(p.warmTo(context.Background(), 4)).To(Succeed())
	g.Expect(p.size()).To(Equal(4))

	p.resize(1)
	g.Expect(p.targetSizeValue()).To(Equal(1))
	g.Expect(p.size()).To(Equal(4), "scale-down is lazy: size drops only as connections are released")

	conns := make([]*sshconn.Connection, 0, 4)

	for i := 0; i < 4; i++ {
		conn, err := p.acquire(context.Background(), 0)
		g.Expect(err).NotTo(HaveOccurred())
		conns = append(conns, conn)
	}

	for _, conn := range conns {
		p.release(conn)
	}

	g.Expect(p.size()).To(Equal(1))
}

func TestPoolPriorityHandoffServesHighestPriorityFirst(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	dial, _ := countingDialer()
	p := newPool(RoleShared, testSession(), 1, 1, 200*time.Millisecond, time.Minute, dial)
	g.Expect(p.warmTo(context.Background(), 1)).To(Succeed())

	held, err := p.acquire(context.Background(), 0)
	g.Expect(err).NotTo(HaveOccurred())

	order := make(chan int, 2)

	go func() {
		if _, err := p.acquire(context.Background(), 1); err == nil {
			order <- 1
		}
	}()

	time.Sleep(10 * time.Millisecond)

	go func() {
		if _, err := p.acquire(context.Background(), 0); err == nil {
			order <- 0
		}
	}()

	time.Sleep(10 * time.Millisecond)
	p.release(held)

	first := <-order
	g.Expect(first).To(Equal(0), "priority 0 waiter must be served before priority 1")
}
