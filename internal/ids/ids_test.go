package ids

import (
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestNewIsParseableAndOrdered(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		if _, err := ulid.ParseStrict(next); err != nil {
			t.Fatalf("ParseStrict(%q): %v", next, err)
		}
		if next <= prev {
			t.Fatalf("ids not increasing: %q then %q", prev, next)
		}
		prev = next
	}
}
