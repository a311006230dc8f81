package brokererr

import "strings"

func suggestionsFor(kind Kind) []string {
	switch kind {
	case KindAuthFailed:
		return []string{
			"Verify the username and credential are correct for this host",
			"Confirm the SSH key is loaded in ssh-agent or accessible on disk",
			"Check that the server accepts the offered authentication method",
		}
	case KindUnreachable:
		return []string{
			"Check that the host is reachable and the port is open",
			"Verify no firewall or VPN is blocking the connection",
		}
	case KindPermissionDenied:
		return []string{
			"Check the remote file or directory permissions",
			"Confirm the authenticated user has access to this path",
		}
	case KindPoolExhausted:
		return []string{
			"Retry once an in-flight transfer or shell session completes",
			"Increase the pool's maximum size if this happens frequently",
		}
	default:
		return nil
	}
}

// FormatSuggestions renders an error's suggestions as a bulleted list for
// display by the caller, or the empty string when there are none.
func FormatSuggestions(err error) string {
	if err == nil {
		return ""
	}

	be, ok := err.(*Error)
	if !ok {
		return ""
	}

	suggestions := be.Suggestions()
	if len(suggestions) == 0 {
		return ""
	}

	var b strings.Builder

	for i, s := range suggestions {
		if i > 0 {
			b.WriteString("\n")
		}

		b.WriteString("  • ")
		b.WriteString(s)
	}

	return b.String()
}
