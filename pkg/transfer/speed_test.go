package transfer

import (
	"testing"
	"time"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers
)

func TestSpeedWindowComputesRateAcrossSamples(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	w := newSpeedWindow(10 * time.Second)
	w.record(0)
	time.Sleep(20 * time.Millisecond)
	w.record(2000)

	speed := w.speedBytesPerSec()
	g.Expect(speed).To(BeNumerically(">", 0))
}

func TestSpeedWindowZeroWithFewerThanTwoSamples(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	w := newSpeedWindow(10 * time.Second)
	w.record(42)

	g.Expect(w.speedBytesPerSec()).To(BeZero())
}

func TestAdaptiveBufferGrowsAboveThresholdAndShrinksBelowHalf(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	buf := newAdaptiveBuffer(1024*1024, 256*1024, 8*1024*1024, 1.5) //nolint:mnd // test fixture matching config defaults
	buf.lastSize = time.Now().Add(-2 * time.Second)

	buf.adjust(2*1024*1024, 1024*1024) // above threshold
	g.Expect(buf.size()).To(BeEquivalentTo(int64(1024 * 1024 * 1.5)))

	buf.lastSize = time.Now().Add(-2 * time.Second)
	buf.adjust(100*1024, 1024*1024) // well below half-threshold
	g.Expect(buf.size()).To(BeNumerically("<", int64(1024*1024*1.5)))
}

func TestAdaptiveBufferClampsToMinAndMax(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	buf := newAdaptiveBuffer(8*1024*1024, 256*1024, 8*1024*1024, 1.5) //nolint:mnd // test fixture matching config defaults
	buf.lastSize = time.Now().Add(-2 * time.Second)

	buf.adjust(100*1024*1024, 1024*1024)
	g.Expect(buf.size()).To(BeEquivalentTo(8 * 1024 * 1024))
}
