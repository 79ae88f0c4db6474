// Package render turns analysis answers into HTML for clients that display them.
package render

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Answers frequently contain tables and strikethrough. Raw HTML in the answer
// is not passed through.
var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Markdown converts answer text to an HTML fragment.
func Markdown(answer string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(answer), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
