package mapping

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{name: "short text unchanged", text: "Jane Doe", max: 50, want: "Jane Doe"},
		{name: "exact length unchanged", text: "0123456789", max: 10, want: "0123456789"},
		{name: "no limit", text: "anything at all", max: 0, want: "anything at all"},
		{name: "hard cut when space is early", text: "Jane Doe; John Doe", max: 10, want: "Jane Do..."},
		{name: "word break near the limit", text: "Apartment complex located downtown", max: 21, want: "Apartment complex..."},
		{name: "no spaces at all", text: "abcdefghijklmnopqrstuvwxyz", max: 8, want: "abcde..."},
		{name: "tiny limit has no room for ellipsis", text: "abcdef", max: 3, want: "abc"},
		{name: "multibyte runes", text: "Zoë Ångström-Ørsted", max: 10, want: "Zoë Ång..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.text, tt.max)
			if got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.text, tt.max, got, tt.want)
			}
		})
	}
}

func TestTruncate_BoundAndIdempotence(t *testing.T) {
	inputs := []string{
		"",
		"a",
		"Jane Doe; John Doe",
		"The quick brown fox jumps over the lazy dog",
		"1234 Long Street Name Boulevard, Apartment 5B, Springfield",
		strings.Repeat("word ", 40),
		strings.Repeat("x", 200),
		"   leading and trailing spaces   ",
		"Ünïcödé nämes wïth äccents everywhere in the string",
	}
	for _, s := range inputs {
		for n := 4; n <= 60; n++ {
			once := Truncate(s, n)
			if got := utf8.RuneCountInString(once); got > n {
				t.Fatalf("len(Truncate(%q, %d)) = %d, exceeds limit", s, n, got)
			}
			if twice := Truncate(once, n); twice != once {
				t.Fatalf("Truncate not idempotent for %q, %d: %q then %q", s, n, once, twice)
			}
			if utf8.RuneCountInString(s) > n && !strings.HasSuffix(once, ellipsis) {
				t.Fatalf("Truncate(%q, %d) = %q, want ellipsis suffix", s, n, once)
			}
		}
	}
}

func TestCityZip(t *testing.T) {
	tests := []struct {
		name   string
		values []any
		want   string
	}{
		{
			name:   "full address",
			values: []any{map[string]any{"city": "Oakland", "state": "CA", "zip": "94612"}},
			want:   "Oakland, CA 94612",
		},
		{
			name:   "missing zip",
			values: []any{map[string]any{"city": "Oakland", "state": "CA"}},
			want:   "Oakland, CA",
		},
		{
			name:   "city only",
			values: []any{map[string]any{"city": "Oakland"}},
			want:   "Oakland",
		},
		{
			name: "one per party",
			values: []any{
				map[string]any{"city": "Oakland", "state": "CA", "zip": "94612"},
				map[string]any{},
				map[string]any{"city": "Fresno", "state": "CA", "zip": "93721"},
			},
			want: "Oakland, CA 94612; Fresno, CA 93721",
		},
		{name: "preformatted string", values: []any{" Reno, NV 89501 "}, want: "Reno, NV 89501"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cityZip(tt.values)
			if err != nil {
				t.Fatalf("cityZip() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("cityZip() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := cityZip([]any{42.0}); err == nil {
		t.Error("cityZip() expected error for a number")
	}
}

func TestJoinValues_FiltersEmpty(t *testing.T) {
	got, err := joinValues([]any{"Jane Doe", "", "  ", "John Doe"})
	if err != nil {
		t.Fatalf("joinValues() error = %v", err)
	}
	if got != "Jane Doe; John Doe" {
		t.Errorf("joinValues() = %q, want %q", got, "Jane Doe; John Doe")
	}
}
