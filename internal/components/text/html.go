package text

import (
	"context"
	"errors"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/datatypes"
)

// ErrNoText is returned when an HTML document holds no visible text.
var ErrNoText = errors.New("no text found in HTML document")

// HTMLTextExtractorDescriptor describes HTMLTextExtractor.
var HTMLTextExtractorDescriptor = component.Descriptor{
	Name:        "HTMLTextExtractor",
	Description: "Extracts the visible text of HTML documents",
	Inputs:      []string{portHTML},
	Outputs:     []string{portText},
}

// HTMLTextExtractor pushes one text per input document.
type HTMLTextExtractor struct{}

// NewHTMLTextExtractor creates the component.
func NewHTMLTextExtractor() component.Component { return &HTMLTextExtractor{} }

func (h *HTMLTextExtractor) Initialize(context.Context, *component.Properties) error { return nil }

func (h *HTMLTextExtractor) Execute(_ context.Context, cc *component.Context) error {
	docs, err := datatypes.ParseAsStrings(cc.Input(portHTML))
	if err != nil {
		return err
	}
	for _, doc := range docs {
		text, err := ExtractText(doc)
		if err != nil {
			return err
		}
		if err := cc.Push(portText, datatypes.NewStrings(text)); err != nil {
			return err
		}
	}
	return nil
}

func (h *HTMLTextExtractor) Dispose(context.Context) error { return nil }

// skipped elements never contribute text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Head:     true,
}

// blocks end the current line.
var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Blockquote: true, atom.Pre: true, atom.Table: true, atom.Ul: true, atom.Ol: true,
}

// ExtractText returns the visible text of doc. Runs of spaces collapse to
// one and block elements end a line.
func ExtractText(doc string) (string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", err
	}

	var lines []string
	var line strings.Builder
	flush := func() {
		if s := strings.Join(strings.Fields(line.String()), " "); s != "" {
			lines = append(lines, s)
		}
		line.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if skipped[n.DataAtom] {
				return
			}
		case html.TextNode:
			line.WriteString(n.Data)
			line.WriteByte(' ')
			return
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blocks[n.DataAtom] {
			flush()
		}
	}
	walk(root)
	flush()

	if len(lines) == 0 {
		return "", ErrNoText
	}
	return strings.Join(lines, "\n"), nil
}

// HTMLToMarkdownDescriptor describes HTMLToMarkdown.
var HTMLToMarkdownDescriptor = component.Descriptor{
	Name:        "HTMLToMarkdown",
	Description: "Converts HTML documents to Markdown",
	Inputs:      []string{portHTML},
	Outputs:     []string{portText},
}

// HTMLToMarkdown pushes one Markdown text per input document.
type HTMLToMarkdown struct{}

// NewHTMLToMarkdown creates the component.
func NewHTMLToMarkdown() component.Component { return &HTMLToMarkdown{} }

func (h *HTMLToMarkdown) Initialize(context.Context, *component.Properties) error { return nil }

func (h *HTMLToMarkdown) Execute(_ context.Context, cc *component.Context) error {
	docs, err := datatypes.ParseAsStrings(cc.Input(portHTML))
	if err != nil {
		return err
	}
	for _, doc := range docs {
		md, err := htmltomarkdown.ConvertString(doc)
		if err != nil {
			return err
		}
		if err := cc.Push(portText, datatypes.NewStrings(strings.TrimSpace(md))); err != nil {
			return err
		}
	}
	return nil
}

func (h *HTMLToMarkdown) Dispose(context.Context) error { return nil }
