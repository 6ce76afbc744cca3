package convert

import (
	"fmt"
	"io"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"golang.org/x/net/html"
)

// HTMLFormat handles HTML files. The main content area is located with
// x/net/html and rendered to Markdown by html-to-markdown.
type HTMLFormat struct {
	converter *md.Converter
}

func NewHTMLFormat() *HTMLFormat {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &HTMLFormat{converter: converter}
}

func (p *HTMLFormat) ToMarkdown(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	title := findTitle(doc)
	content := mainContent(doc)
	if content == nil {
		return "", nil
	}
	removeElements(content, "script", "style", "noscript", "nav", "header", "footer", "aside", "form", "iframe")

	var sb strings.Builder
	if err := html.Render(&sb, content); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	markdown, err := p.converter.ConvertString(sb.String())
	if err != nil {
		return "", fmt.Errorf("html to markdown: %w", err)
	}

	if title != "" && !hasTopHeading(markdown) {
		markdown = "# " + title + "\n\n" + markdown
	}
	return markdown, nil
}

// mainContent prefers <main>, then <article>, then <body>.
func mainContent(doc *html.Node) *html.Node {
	for _, tag := range []string{"main", "article", "body"} {
		if n := findElement(doc, tag); n != nil {
			return n
		}
	}
	return doc
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func removeElements(n *html.Node, tags ...string) {
	skip := make(map[string]bool, len(tags))
	for _, t := range tags {
		skip[t] = true
	}
	var toRemove []*html.Node
	var collect func(*html.Node)
	collect = func(node *html.Node) {
		if node.Type == html.ElementNode && skip[node.Data] {
			toRemove = append(toRemove, node)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	for _, node := range toRemove {
		if node.Parent != nil {
			node.Parent.RemoveChild(node)
		}
	}
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return textContent(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func hasTopHeading(markdown string) bool {
	for _, line := range strings.Split(markdown, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "# ") {
			return true
		}
	}
	return false
}
