package shellsession

import (
	"testing"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers
)

func TestDetectCd(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	g.Expect(detectCd([]byte("cd /var/log\n"))).To(BeTrue())
	g.Expect(detectCd([]byte("cd\n"))).To(BeFalse(), "bare cd with no argument does not match")
	g.Expect(detectCd([]byte("ls -la\n"))).To(BeFalse())
	g.Expect(detectCd([]byte("  cd /tmp\n"))).To(BeFalse(), "leading whitespace means it is not the start of the command")
}

func TestParseCwdReply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		output  string
		wantCwd string
		wantOK  bool
	}{
		{"simple reply", "/var/log\n", "/var/log", true},
		{"echoed command then reply", "pwd\n/home/user\n", "/home/user", true},
		{"no absolute path yet", "pwd\n", "", false},
		{"reply without trailing newline", "/etc", "/etc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			cwd, ok := parseCwdReply(tt.output)
			g.Expect(ok).To(Equal(tt.wantOK))
			g.Expect(cwd).To(Equal(tt.wantCwd))
		})
	}
}
