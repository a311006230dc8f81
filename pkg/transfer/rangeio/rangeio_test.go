package rangeio

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers
)

func TestAllocateCreatesExactSize(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	path := filepath.Join(t.TempDir(), "nested", "dest.bin")

	g.Expect(Allocate(path, 4096)).To(Succeed())

	info, err := os.Stat(path)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(info.Size()).To(BeEquivalentTo(4096))
}

func TestWriteAtWritesDisjointRanges(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	path := filepath.Join(t.TempDir(), "dest.bin")
	g.Expect(Allocate(path, 12)).To(Succeed())

	g.Expect(WriteAt(path, 0, []byte("abcd"))).To(Succeed())
	g.Expect(WriteAt(path, 8, []byte("ijkl"))).To(Succeed())
	g.Expect(WriteAt(path, 4, []byte("efgh"))).To(Succeed())

	content, err := os.ReadFile(path) //nolint:gosec // test-owned temp path
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(string(content)).To(Equal("abcdefghijkl"))
}

type fakeRangeReader struct {
	data     []byte
	subReads [][2]int64
}

func (f *fakeRangeReader) ReadRangeBytes(_, _ string, offset, length int64) ([]byte, int64, error) {
	f.subReads = append(f.subReads, [2]int64{offset, length})

	end := offset + length
	if end > int64(len(f.data)) {
		end = int64(len(f.data))
	}

	chunk := f.data[offset:end]
	if int64(len(chunk)) < length {
		return chunk, int64(len(chunk)), io.EOF
	}

	return chunk, int64(len(chunk)), nil
}

func TestReadRangeAssemblesAcrossSubReads(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	data := make([]byte, subReadSize*2+10)
	for i := range data {
		data[i] = byte(i % 251)
	}

	reader := &fakeRangeReader{data: data}

	result, err := ReadRange(context.Background(), reader, "conn", "/remote/file", 0, int64(len(data)))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(result).To(Equal(data))
	g.Expect(len(reader.subReads)).To(BeNumerically(">=", 3))
}

func TestReadRangeReportsShortReadOnPrematureEOF(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	reader := &fakeRangeReader{data: []byte("short")}

	_, err := ReadRange(context.Background(), reader, "conn", "/remote/file", 0, 100)
	g.Expect(err).To(MatchError(ErrShortRead))
}

func TestReadRangeHonorsCancellation(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := &fakeRangeReader{data: make([]byte, subReadSize*4)}

	_, err := ReadRange(ctx, reader, "conn", "/remote/file", 0, int64(len(reader.data)))
	g.Expect(err).To(HaveOccurred())
}
