package compress

import (
	"bytes"
	"io"
	"testing"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers
)

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 200)

	for _, method := range []Method{MethodGzip, MethodBzip2, MethodXZ} {
		t.Run(string(method), func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			var compressed bytes.Buffer

			writer, err := method.Writer(&compressed)
			g.Expect(err).NotTo(HaveOccurred())

			_, err = writer.Write(payload)
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(writer.Close()).To(Succeed())

			reader, err := method.Reader(&compressed)
			g.Expect(err).NotTo(HaveOccurred())
			defer reader.Close()

			roundTripped, err := io.ReadAll(reader)
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(roundTripped).To(Equal(payload))
		})
	}
}

func TestMethodNonePassesThroughUnchanged(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	var buf bytes.Buffer

	writer, err := MethodNone.Writer(&buf)
	g.Expect(err).NotTo(HaveOccurred())
	_, err = writer.Write([]byte("hello"))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(writer.Close()).To(Succeed())
	g.Expect(buf.String()).To(Equal("hello"))
}
