package brokererr_test

import (
	"errors"
	"testing"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers

	"github.com/sshbroker/engine/pkg/brokererr"
)

func TestErrorIsMatchesSentinel(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	err := brokererr.New(brokererr.KindTimeout, "dial took too long", "example.com")

	g.Expect(errors.Is(err, brokererr.ErrTimeout)).To(BeTrue())
	g.Expect(errors.Is(err, brokererr.ErrUnreachable)).To(BeFalse())
}

func TestErrorUnwrapReachesCause(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	cause := errors.New("connection refused")
	err := brokererr.Wrap(brokererr.KindUnreachable, "tcp dial failed", "10.0.0.1", cause)

	g.Expect(errors.Unwrap(err)).To(Equal(cause))
	g.Expect(errors.Is(err, brokererr.ErrUnreachable)).To(BeTrue())
}

func TestErrorMessageIncludesPath(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	err := brokererr.New(brokererr.KindNoSuchPath, "not found", "/etc/missing")

	g.Expect(err.Error()).To(ContainSubstring("/etc/missing"))
	g.Expect(err.AffectedPath()).To(Equal("/etc/missing"))
}

func TestSuggestionsPopulatedForActionableKinds(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	for _, kind := range []brokererr.Kind{brokererr.KindAuthFailed, brokererr.KindUnreachable, brokererr.KindPermissionDenied, brokererr.KindPoolExhausted} {
		err := brokererr.New(kind, "failure", "")
		g.Expect(err.Suggestions()).NotTo(BeEmpty(), "kind %s should carry suggestions", kind)
	}
}

func TestSuggestionsEmptyForNonActionableKinds(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	err := brokererr.New(brokererr.KindInternal, "unexpected", "")
	g.Expect(err.Suggestions()).To(BeEmpty())
}

func TestFormatSuggestionsBulletsEachLine(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	err := brokererr.New(brokererr.KindAuthFailed, "bad credentials", "")
	formatted := brokererr.FormatSuggestions(err)

	g.Expect(formatted).To(ContainSubstring("•"))
}

func TestFormatSuggestionsHandlesNilAndForeignErrors(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	g.Expect(brokererr.FormatSuggestions(nil)).To(Equal(""))
	g.Expect(brokererr.FormatSuggestions(errors.New("plain"))).To(Equal(""))
}
