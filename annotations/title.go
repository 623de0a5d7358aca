// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package annotations

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultReferenceBaseURL is the site reference links point to.
const DefaultReferenceBaseURL = "https://en.wikipedia.org"

// NormalizeTitle returns the canonical form of an article title: underscores become
// spaces, runs of whitespace collapse to one space and the result is NFC normalized.
func NormalizeTitle(title string) string {
	title = strings.ReplaceAll(title, "_", " ")
	title = strings.Join(strings.Fields(title), " ")
	return norm.NFC.String(title)
}

// TitleFromPath decodes an article path segment such as "Albert_Einstein" or
// "Albert%20Einstein" into its canonical title. A segment that decodes to invalid UTF-8
// has no title and yields "".
func TitleFromPath(segment string) string {
	decoded, err := url.PathUnescape(segment)
	if err != nil {
		decoded = segment
	}
	if !utf8.ValidString(decoded) {
		return ""
	}
	return NormalizeTitle(decoded)
}

// ArticleURL builds the canonical article URL for a title under baseURL.
func ArticleURL(baseURL, title string) string {
	if baseURL == "" {
		baseURL = DefaultReferenceBaseURL
	}
	segment := strings.ReplaceAll(NormalizeTitle(title), " ", "_")
	return strings.TrimSuffix(baseURL, "/") + "/wiki/" + url.PathEscape(segment)
}
