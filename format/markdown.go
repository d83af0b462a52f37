// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package format converts between outgoing markdown, the protocol's HTML
// message format and plain text for terminal rendering.
package format

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

const paragraphStart = "<p>"
const paragraphEnd = "</p>"

var Extensions = goldmark.WithExtensions(extension.Strikethrough, extension.Table)
var HTMLOptions = goldmark.WithRendererOptions(html.WithHardWraps(), html.WithUnsafe())

var renderer = goldmark.New(Extensions, HTMLOptions)

// UnwrapSingleParagraph removes paragraph tags surrounding a string if the
// string only contains a single paragraph.
func UnwrapSingleParagraph(html string) string {
	html = strings.TrimRight(html, "\n")
	if strings.HasPrefix(html, paragraphStart) && strings.HasSuffix(html, paragraphEnd) {
		htmlBodyWithoutP := html[len(paragraphStart) : len(html)-len(paragraphEnd)]
		if !strings.Contains(htmlBodyWithoutP, paragraphStart) {
			return htmlBodyWithoutP
		}
	}
	return html
}

// RenderMarkdown renders markdown into the protocol's HTML message format.
// Plain text without any markup comes back unchanged, which callers use to
// skip the formatted body entirely.
func RenderMarkdown(text string) string {
	var buf strings.Builder
	err := renderer.Convert([]byte(text), &buf)
	if err != nil {
		// goldmark only fails on writer errors, which strings.Builder
		// doesn't produce.
		return text
	}
	return UnwrapSingleParagraph(buf.String())
}
