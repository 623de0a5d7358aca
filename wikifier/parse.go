// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package wikifier

import (
	"encoding/json"
	"fmt"

	"github.com/mattermost/reference-annotator/annotations"
)

// document is the top level of a classifier response, keyed by field name so that
// strategies can be selected by shape.
type document map[string]json.RawMessage

// parseStrategy recovers reference entries from one response shape.
type parseStrategy interface {
	Name() string
	Matches(doc document) bool
	Parse(doc document, referenceBaseURL string) ([]annotations.ReferenceEntry, error)
}

// strategies are tried in order; the first match wins.
var strategies = []parseStrategy{
	structuredStrategy{},
	htmlStrategy{},
}

// parseResponse decodes a classifier response body. It returns the name of the strategy
// used, or annotations.ErrParseFailure when the body matches no known shape.
func parseResponse(body []byte, referenceBaseURL string) ([]annotations.ReferenceEntry, string, error) {
	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, "", fmt.Errorf("%w: %w", annotations.ErrParseFailure, err)
	}

	for _, strategy := range strategies {
		if !strategy.Matches(doc) {
			continue
		}
		entries, err := strategy.Parse(doc, referenceBaseURL)
		if err != nil {
			return nil, strategy.Name(), fmt.Errorf("%w: %s: %w", annotations.ErrParseFailure, strategy.Name(), err)
		}
		return entries, strategy.Name(), nil
	}

	return nil, "", fmt.Errorf("%w: no known response shape", annotations.ErrParseFailure)
}

type structuredAnnotation struct {
	Title        string   `json:"title"`
	ArticleTitle string   `json:"articleTitle"`
	URL          string   `json:"url"`
	PageRank     *float64 `json:"pageRank"`
	Confidence   *float64 `json:"confidence"`
}

// structuredStrategy reads an "annotations" list of objects.
type structuredStrategy struct{}

func (structuredStrategy) Name() string { return "structured" }

func (structuredStrategy) Matches(doc document) bool {
	_, ok := doc["annotations"]
	return ok
}

func (structuredStrategy) Parse(doc document, referenceBaseURL string) ([]annotations.ReferenceEntry, error) {
	var raw []structuredAnnotation
	if err := json.Unmarshal(doc["annotations"], &raw); err != nil {
		return nil, err
	}

	entries := make([]annotations.ReferenceEntry, 0, len(raw))
	for _, item := range raw {
		title := annotations.NormalizeTitle(item.Title)
		if title == "" {
			title = annotations.NormalizeTitle(item.ArticleTitle)
		}
		if title == "" {
			continue
		}

		url := item.URL
		if url == "" {
			url = annotations.ArticleURL(referenceBaseURL, title)
		}

		entries = append(entries, annotations.ReferenceEntry{
			Title:      title,
			URL:        url,
			Confidence: structuredConfidence(item),
		})
	}

	return entries, nil
}

// structuredConfidence prefers a non-zero pageRank and falls back to confidence.
func structuredConfidence(item structuredAnnotation) *float64 {
	var v *float64
	switch {
	case item.PageRank != nil && *item.PageRank != 0:
		v = item.PageRank
	case item.Confidence != nil:
		v = item.Confidence
	default:
		v = item.PageRank
	}
	if v == nil {
		return nil
	}
	return annotations.Confidence(*v)
}

// htmlStrategy scans the anchors of a "wikifiedHTML" blob.
type htmlStrategy struct{}

func (htmlStrategy) Name() string { return "html" }

func (htmlStrategy) Matches(doc document) bool {
	_, ok := doc["wikifiedHTML"]
	return ok
}

func (htmlStrategy) Parse(doc document, referenceBaseURL string) ([]annotations.ReferenceEntry, error) {
	var blob string
	if err := json.Unmarshal(doc["wikifiedHTML"], &blob); err != nil {
		return nil, err
	}
	return extractReferenceLinks(blob, referenceBaseURL)
}
