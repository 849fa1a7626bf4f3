//go:build go1.18

package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseSignalID checks that parsing never panics on arbitrary input and
// that an accepted ID round-trips through String.
func FuzzParseSignalID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE safety_signals;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("550e8400-e29b-41d4-a716-446655440000\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseSignalID(input)
		if err != nil {
			return
		}
		if id.IsNil() {
			t.Error("accepted a nil signal id")
		}
		if !utf8.ValidString(id.String()) {
			t.Error("String produced invalid UTF-8")
		}
		roundTrip, err := ParseSignalID(id.String())
		if err != nil {
			t.Errorf("accepted id failed round-trip: %v", err)
		}
		if roundTrip != id {
			t.Error("round-trip changed the id value")
		}
	})
}
