package sftpcache

import (
	"testing"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers
)

func TestEncodeDecodeTextRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		enc  Encoding
		data string
	}{
		{"utf8", EncodingUTF8, "hello, world\nwith a newline"},
		{"base64", EncodingBase64, "binary-ish content \x00\x01\x02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			encoded := encodeText([]byte(tt.data), tt.enc)
			decoded, err := decodeText(encoded, tt.enc)

			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(string(decoded)).To(Equal(tt.data))
		})
	}
}

func TestConnectionIDConvention(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	g.Expect(ConnectionID("session-42")).To(Equal("sftp-session-42"))
}

func TestPathHistoryDedupesAndCaps(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	h := newHandle("sftp-x", "x", nil, func() {})

	for i := 0; i < pathHistoryLimit+10; i++ {
		h.storeDir("/a", nil)
		h.storeDir("/b", nil)
	}

	g.Expect(h.PathHistory()).To(HaveLen(2), "repeated paths must not duplicate history entries")
}
