package transfer

import (
	"testing"

	"github.com/rs/zerolog"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers

	"github.com/sshbroker/engine/internal/config"
)

func testEngine() *Engine {
	return NewEngine(nil, nil, nil, config.Default().Transfer, zerolog.Nop(), nil)
}

func TestSelectKBasicWhenNotParallel(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	e := testEngine()
	g.Expect(e.selectK(500*1024*1024, false, DirectionDownload, 0)).To(Equal(1))
}

func TestSelectKBasicWhenBelowThreshold(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	e := testEngine()
	g.Expect(e.selectK(1024*1024, true, DirectionUpload, 0)).To(Equal(1))
}

func TestSelectKParallelDownloadUsesOptimalHeuristic(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	e := testEngine()
	g.Expect(e.selectK(100*1024*1024, true, DirectionDownload, 30)).To(Equal(12))
}

func TestSelectKParallelUploadUsesConfiguredMaxUnchanged(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	e := testEngine()
	g.Expect(e.selectK(200*1024*1024, true, DirectionUpload, 16)).To(Equal(16))
}

func TestCompressionMethodParsesRequested(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	method, ok := compressionMethod("gzip")
	g.Expect(ok).To(BeTrue())
	g.Expect(method).To(BeEquivalentTo("gzip"))

	_, ok = compressionMethod("")
	g.Expect(ok).To(BeFalse())
}
