package utils

import "strings"

// WalkSuffixes calls fn with name and then with every suffix of name that
// starts right after a '.', from longest to shortest. Walking stops early when
// fn returns false. For "a.b.example.com" fn sees "a.b.example.com",
// "b.example.com", "example.com" and "com".
//
// The suffixes are sub-slices of name; no allocation takes place.
func WalkSuffixes(name string, fn func(suffix string) bool) {
	for name != "" {
		if !fn(name) {
			return
		}
		i := strings.IndexByte(name, '.')
		if i < 0 {
			return
		}
		name = name[i+1:]
	}
}
