package compress

import (
	"testing"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers
)

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	g.Expect(ShellQuote("/tmp/plain")).To(Equal("'/tmp/plain'"))
	g.Expect(ShellQuote("it's a file")).To(Equal(`'it'"'"'s a file'`))
}

func TestRemoteCompressCommandGzipIsDirect(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	cmd := RemoteCompressCommand(MethodGzip, "/home/user/report.csv", "/tmp/abc123.gz")
	g.Expect(cmd).To(Equal("gzip -c '/home/user/report.csv' > '/tmp/abc123.gz'"))
}

func TestRemoteCompressCommandOtherMethodsUseTarWithCdPrefix(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	cmd := RemoteCompressCommand(MethodBzip2, "/home/user/project", "/tmp/abc123.tar.bz2")
	g.Expect(cmd).To(Equal("cd '/home/user' && tar cjf '/tmp/abc123.tar.bz2' 'project'"))

	cmd = RemoteCompressCommand(MethodXZ, "/home/user/project", "/tmp/abc123.tar.xz")
	g.Expect(cmd).To(Equal("cd '/home/user' && tar cJf '/tmp/abc123.tar.xz' 'project'"))
}

func TestRemoteDecompressCommand(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	g.Expect(RemoteDecompressCommand(MethodGzip, "/tmp/a.gz", "/home/user/dst")).
		To(Equal("gunzip -c '/tmp/a.gz' > '/home/user/dst'"))
	g.Expect(RemoteDecompressCommand(MethodBzip2, "/tmp/a.bz2", "/home/user/dst")).
		To(Equal("bunzip2 -c '/tmp/a.bz2' > '/home/user/dst'"))
	g.Expect(RemoteDecompressCommand(MethodXZ, "/tmp/a.xz", "/home/user/dst")).
		To(Equal("unxz -c '/tmp/a.xz' > '/home/user/dst'"))
}
