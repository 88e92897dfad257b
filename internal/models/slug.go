// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package models

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Kebab lowercases s and joins its alphanumeric runs with single hyphens.
//
//	Kebab("Spring Walk: Ridge & Valley") == "spring-walk-ridge-valley"
func Kebab(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// URLTail returns the last non-empty path segment of rawURL, lowercased.
// Query strings and fragments are ignored. Relative paths are accepted.
func URLTail(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		path = path[i+1:]
	}
	if unescaped, err := url.PathUnescape(path); err == nil {
		path = unescaped
	}
	return strings.ToLower(path)
}

// LooksLikeSlug reports whether ref has the shape of a human-readable slug rather
// than a raw external identifier: lowercase kebab-case containing at least one letter.
func LooksLikeSlug(ref string) bool {
	if !slugPattern.MatchString(ref) {
		return false
	}
	return strings.IndexFunc(ref, unicode.IsLetter) >= 0
}
