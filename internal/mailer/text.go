package mailer

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "h1": true, "h2": true, "h3": true,
	"li": true, "tr": true, "table": true, "ul": true, "ol": true,
}

// PlainText renders an HTML body as readable text. Links keep their target in
// parentheses; style and script contents are dropped.
func PlainText(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	doc.Find("style, script, head title").Remove()

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			text := strings.Join(strings.Fields(n.Data), " ")
			if text != "" {
				if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") && !strings.HasSuffix(b.String(), " ") {
					b.WriteString(" ")
				}
				b.WriteString(text)
			}
			return
		case html.ElementNode:
			if n.Data == "a" {
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					walk(c)
				}
				for _, attr := range n.Attr {
					if attr.Key == "href" && attr.Val != "" {
						b.WriteString(" (" + attr.Val + ")")
					}
				}
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && blockTags[n.Data] {
			b.WriteString("\n\n")
		}
	}

	for _, n := range doc.Find("body").Nodes {
		walk(n)
	}

	out := blankLines.ReplaceAllString(b.String(), "\n\n")
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
