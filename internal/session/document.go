package session

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// documentText returns the first match of css in doc, with the text of
// separate nodes joined by single spaces so table cells stay apart.
func documentText(doc *goquery.Document, css string) (string, bool) {
	sel := doc.Find(css).First()
	if sel.Length() == 0 {
		return "", false
	}

	parts := make([]string, 0, 16)
	for _, n := range sel.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, " "), true
}

func collectText(node *html.Node, parts *[]string) {
	if node == nil {
		return
	}
	if node.Type == html.ElementNode && (node.Data == "script" || node.Data == "style") {
		return
	}
	if node.Type == html.TextNode {
		if text := strings.TrimSpace(node.Data); text != "" {
			*parts = append(*parts, text)
		}
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, parts)
	}
}
