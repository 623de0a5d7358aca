// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/mattermost/reference-annotator/annotations"
)

const (
	maxTitleWidth = 40
	maxURLWidth   = 70
)

// printReferences writes entries as an aligned table. Widths are measured in terminal
// cells so titles in wide scripts line up.
func printReferences(out io.Writer, entries []annotations.ReferenceEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No references found.")
		return
	}

	headers := []string{"#", "TITLE", "CONFIDENCE", "URL"}
	rows := make([][]string, 0, len(entries))
	for i, entry := range entries {
		confidence := "-"
		if entry.Confidence != nil {
			confidence = fmt.Sprintf("%.3f", *entry.Confidence)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			runewidth.Truncate(entry.Title, maxTitleWidth, "..."),
			confidence,
			runewidth.Truncate(entry.URL, maxURLWidth, "..."),
		})
	}

	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = runewidth.StringWidth(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	writeRow(out, headers, widths)
	separators := make([]string, len(widths))
	for i, width := range widths {
		separators[i] = strings.Repeat("-", width)
	}
	writeRow(out, separators, widths)
	for _, row := range rows {
		writeRow(out, row, widths)
	}
}

func writeRow(out io.Writer, cells []string, widths []int) {
	padded := make([]string, len(cells))
	for i, cell := range cells {
		if i == len(cells)-1 {
			padded[i] = cell
			continue
		}
		padded[i] = runewidth.FillRight(cell, widths[i])
	}
	fmt.Fprintln(out, strings.TrimRight(strings.Join(padded, "  "), " "))
}
