package utils

import (
	"reflect"
	"testing"
)

func collectSuffixes(name string) []string {
	var out []string
	WalkSuffixes(name, func(s string) bool {
		out = append(out, s)
		return true
	})
	return out
}

func TestWalkSuffixes(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"a.b.example.com", []string{"a.b.example.com", "b.example.com", "example.com", "com"}},
		{"example.com", []string{"example.com", "com"}},
		{"localhost", []string{"localhost"}},
		{"", nil},
		{"trailing.", []string{"trailing."}},
		{"a..b", []string{"a..b", ".b", "b"}},
	}
	for _, tt := range tests {
		got := collectSuffixes(tt.input)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("WalkSuffixes(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestWalkSuffixes_StopsEarly(t *testing.T) {
	var seen []string
	WalkSuffixes("x.y.z", func(s string) bool {
		seen = append(seen, s)
		return s != "y.z"
	})
	if !reflect.DeepEqual(seen, []string{"x.y.z", "y.z"}) {
		t.Errorf("unexpected walk: %q", seen)
	}
}
