package compress

import (
	"fmt"
	"path"
	"strings"
)

// ShellQuote single-quote-escapes path for safe interpolation into a
// remote shell command: `'` maps to `'"'"'`. No other shell metacharacter
// is ever interpolated; shell invocation in this package is confined to
// compress/extract/cleanup commands.
func ShellQuote(p string) string {
	escaped := strings.ReplaceAll(p, `'`, `'"'"'`)

	return "'" + escaped + "'"
}

// RemoteCompressCommand builds the remote command that writes a
// compressed artifact at tmpPath from srcPath. Single-file gzip shells out
// directly; other methods archive through tar with a cd prefix so
// directories compress correctly too.
func RemoteCompressCommand(method Method, srcPath, tmpPath string) string {
	if method == MethodGzip {
		return fmt.Sprintf("gzip -c %s > %s", ShellQuote(srcPath), ShellQuote(tmpPath))
	}

	dir, base := path.Dir(srcPath), path.Base(srcPath)

	return fmt.Sprintf("cd %s && tar %s %s %s", ShellQuote(dir), tarCreateFlags(method), ShellQuote(tmpPath), ShellQuote(base))
}

// RemoteDecompressCommand builds the remote command used by a compressed
// upload's final phase: decompress the uploaded artifact at archivePath
// into destPath.
func RemoteDecompressCommand(method Method, archivePath, destPath string) string {
	switch method {
	case MethodBzip2:
		return fmt.Sprintf("bunzip2 -c %s > %s", ShellQuote(archivePath), ShellQuote(destPath))
	case MethodXZ:
		return fmt.Sprintf("unxz -c %s > %s", ShellQuote(archivePath), ShellQuote(destPath))
	case MethodGzip, MethodNone:
		return fmt.Sprintf("gunzip -c %s > %s", ShellQuote(archivePath), ShellQuote(destPath))
	default:
		return fmt.Sprintf("gunzip -c %s > %s", ShellQuote(archivePath), ShellQuote(destPath))
	}
}

// LocalTarExtractArgs returns the tar argv used to extract archivePath into
// destDir locally for non-gzip download methods (gzip is handled in-process
// by Method.Reader instead of shelling out to tar).
func LocalTarExtractArgs(method Method, archivePath, destDir string) []string {
	return []string{"tar", tarExtractFlags(method), archivePath, "-C", destDir}
}

// RemoveCommand builds a safe remote `rm -f` for cleaning up an
// intermediate artifact.
func RemoveCommand(remotePath string) string {
	return fmt.Sprintf("rm -f %s", ShellQuote(remotePath))
}

func tarCreateFlags(method Method) string {
	switch method {
	case MethodBzip2:
		return "cjf"
	case MethodXZ:
		return "cJf"
	case MethodGzip:
		return "czf"
	case MethodNone:
		return "cf"
	default:
		return "cf"
	}
}

func tarExtractFlags(method Method) string {
	switch method {
	case MethodBzip2:
		return "-xjf"
	case MethodXZ:
		return "-xJf"
	case MethodGzip:
		return "-xzf"
	case MethodNone:
		return "-xf"
	default:
		return "-xf"
	}
}
