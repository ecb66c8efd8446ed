package export

import (
	"bytes"
	"fmt"
	"html"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

const htmlHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: sans-serif; max-width: 60rem; margin: 2rem auto; }
table { border-collapse: collapse; width: 100%%; }
th, td { border: 1px solid #ccc; padding: 0.3rem 0.5rem; text-align: left; }
</style>
</head>
<body>
`

func writeHTML(w io.Writer, doc Document) error {
	var body bytes.Buffer
	if err := md.Convert([]byte(renderMarkdown(doc)), &body); err != nil {
		return fmt.Errorf("rendering markdown: %w", err)
	}
	if _, err := fmt.Fprintf(w, htmlHead, html.EscapeString(doc.Title)); err != nil {
		return err
	}
	if _, err := w.Write(body.Bytes()); err != nil {
		return err
	}
	_, err := io.WriteString(w, "</body>\n</html>\n")
	return err
}
