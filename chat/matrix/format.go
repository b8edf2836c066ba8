// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package matrix

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
)

// markdown renders message bodies. Raw HTML in the input is dropped,
// so streamed text cannot inject markup. Hard wraps keep the status
// line and the text on separate lines.
var markdown = goldmark.New(
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// layoutTags are the tags plain text renders to. Output made only of
// these adds nothing over the plain body.
var layoutTags = strings.NewReplacer("<p>", "", "</p>", "", "<br />", "", "<br>", "")

// withFormattedBody adds an HTML rendering of content.Body when the
// body uses Markdown formatting.
func withFormattedBody(content MessageContent) MessageContent {
	if rendered, ok := renderHTML(content.Body); ok {
		content.Format = formatHTML
		content.FormattedBody = rendered
	}
	return content
}

// renderHTML converts body to HTML. It reports false when rendering
// fails or the body has no formatting.
func renderHTML(body string) (string, bool) {
	var buffer bytes.Buffer
	if err := markdown.Convert([]byte(body), &buffer); err != nil {
		return "", false
	}
	rendered := strings.TrimSpace(buffer.String())
	if !strings.Contains(layoutTags.Replace(rendered), "<") {
		return "", false
	}
	return rendered, true
}
