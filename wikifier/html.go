// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package wikifier

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/mattermost/reference-annotator/annotations"
)

// extractReferenceLinks returns one entry per distinct article linked from htmlContent,
// in document order. Only links to articles under referenceBaseURL are considered.
func extractReferenceLinks(htmlContent, referenceBaseURL string) ([]annotations.ReferenceEntry, error) {
	entries := []annotations.ReferenceEntry{}
	if strings.TrimSpace(htmlContent) == "" {
		return entries, nil
	}

	base, err := url.Parse(referenceBaseURL)
	if err != nil {
		return nil, err
	}
	articlePrefix := strings.TrimSuffix(base.EscapedPath(), "/") + "/wiki/"

	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == "a" {
			if title, ok := articleTitle(hrefOf(node), base.Host, articlePrefix); ok && !seen[title] {
				seen[title] = true
				entries = append(entries, annotations.ReferenceEntry{
					Title: title,
					URL:   annotations.ArticleURL(referenceBaseURL, title),
				})
			}
		}

		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return entries, nil
}

func hrefOf(node *html.Node) string {
	for _, attr := range node.Attr {
		if attr.Key == "href" {
			return attr.Val
		}
	}
	return ""
}

// articleTitle returns the decoded title when href points at an article on host.
// The scheme is ignored so http and https links converge.
func articleTitle(href, host, articlePrefix string) (string, bool) {
	if href == "" {
		return "", false
	}
	link, err := url.Parse(href)
	if err != nil || !strings.EqualFold(link.Host, host) {
		return "", false
	}

	path := link.EscapedPath()
	if !strings.HasPrefix(path, articlePrefix) {
		return "", false
	}

	title := annotations.TitleFromPath(strings.TrimPrefix(path, articlePrefix))
	if title == "" {
		return "", false
	}
	return title, true
}
