package transfer

import (
	"testing"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers
)

func TestPlanChunksCoversWholeFileNoGapNoOverlap(t *testing.T) {
	t.Parallel()

	cases := []struct {
		size int64
		k    int
	}{
		{size: 100, k: 8},
		{size: 7, k: 3},
		{size: 1, k: 5},
		{size: 1000, k: 1},
	}

	for _, tc := range cases {
		g := NewWithT(t)

		chunks := PlanChunks(tc.size, tc.k)
		g.Expect(chunks).NotTo(BeEmpty())

		var cursor int64
		for i, c := range chunks {
			g.Expect(c.Start).To(Equal(cursor), "chunk %d must start where the previous one ended", i)
			g.Expect(c.End).To(BeNumerically(">", c.Start))
			cursor = c.End
		}

		g.Expect(cursor).To(Equal(tc.size))
		g.Expect(len(chunks)).To(BeNumerically("<=", tc.k))
	}
}

func TestPlanChunksZeroByteFileYieldsOneEmptyChunk(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	chunks := PlanChunks(0, 8)
	g.Expect(chunks).To(HaveLen(1))
	g.Expect(chunks[0].Size()).To(BeEquivalentTo(0))
}

func TestOptimalDownloadChunksHeuristic(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	const mib = 1024 * 1024

	g.Expect(OptimalDownloadChunks(4*mib, 30)).To(Equal(1))
	g.Expect(OptimalDownloadChunks(40*mib, 30)).To(Equal(8))
	g.Expect(OptimalDownloadChunks(150*mib, 30)).To(Equal(12))
	g.Expect(OptimalDownloadChunks(500*mib, 30)).To(Equal(30))
	g.Expect(OptimalDownloadChunks(500*mib, 10)).To(Equal(10), "user maxChunks clamps the heuristic")
}

func TestApplyResumePositionMarksPriorChunksComplete(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	chunks := PlanChunks(100, 4) // [0,25) [25,50) [50,75) [75,100)
	resumed := ApplyResumePosition(chunks, 60)

	g.Expect(resumed[0].Downloaded).To(Equal(resumed[0].Size()))
	g.Expect(resumed[1].Downloaded).To(Equal(resumed[1].Size()))
	g.Expect(resumed[2].Downloaded).To(BeEquivalentTo(10)) // 60 - 50
	g.Expect(resumed[3].Downloaded).To(BeEquivalentTo(0))
}
