// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package format

import (
	"strings"

	"golang.org/x/net/html"
)

// HTMLToText flattens a formatted message body into plain text for terminal
// rendering. Block elements and <br> become newlines, list items get a
// bullet, and script/style subtrees are dropped entirely.
func HTMLToText(input string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(input))
	var out strings.Builder
	var skipDepth int
	for {
		tokenType := tokenizer.Next()
		switch tokenType {
		case html.ErrorToken:
			return strings.Trim(out.String(), "\n")
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			out.WriteString(string(tokenizer.Text()))
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style", "mx-reply":
				if tokenType == html.StartTagToken {
					skipDepth++
				}
			case "br":
				out.WriteByte('\n')
			case "p", "div", "blockquote", "pre", "table", "tr":
				if out.Len() > 0 {
					out.WriteByte('\n')
				}
			case "li":
				if out.Len() > 0 {
					out.WriteByte('\n')
				}
				out.WriteString("* ")
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style", "mx-reply":
				if skipDepth > 0 {
					skipDepth--
				}
			}
		}
	}
}
