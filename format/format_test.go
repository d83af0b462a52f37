// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package format_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/perch-im/perch/format"
)

func TestRenderMarkdown_PlainText(t *testing.T) {
	// Text without markup comes back unchanged so callers can skip the
	// formatted body.
	assert.Equal(t, "hello world", format.RenderMarkdown("hello world"))
}

func TestRenderMarkdown_Markup(t *testing.T) {
	assert.Equal(t, "<strong>bold</strong> text", format.RenderMarkdown("**bold** text"))
	assert.Equal(t, "<em>hi</em>", format.RenderMarkdown("*hi*"))
	assert.Equal(t, "<del>gone</del>", format.RenderMarkdown("~~gone~~"))
	assert.Equal(t, "<code>x := 1</code>", format.RenderMarkdown("`x := 1`"))
}

func TestRenderMarkdown_MultipleParagraphs(t *testing.T) {
	rendered := format.RenderMarkdown("para one\n\npara two")
	assert.Equal(t, "<p>para one</p>\n<p>para two</p>", rendered)
}

func TestUnwrapSingleParagraph(t *testing.T) {
	assert.Equal(t, "hi", format.UnwrapSingleParagraph("<p>hi</p>\n"))
	assert.Equal(t, "<p>a</p>\n<p>b</p>", format.UnwrapSingleParagraph("<p>a</p>\n<p>b</p>\n"))
}

func TestHTMLToText(t *testing.T) {
	assert.Equal(t, "hello\nworld", format.HTMLToText("hello<br>world"))
	assert.Equal(t, "bold text", format.HTMLToText("<b>bold</b> text"))
	assert.Equal(t, "one\ntwo", format.HTMLToText("<p>one</p><p>two</p>"))
	assert.Equal(t, "* a\n* b", format.HTMLToText("<ul><li>a</li><li>b</li></ul>"))
	assert.Equal(t, "visible", format.HTMLToText("<script>alert(1)</script>visible"))
	assert.Equal(t, "reply text", format.HTMLToText("<mx-reply><blockquote>quoted</blockquote></mx-reply>reply text"))
}
