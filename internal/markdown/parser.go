package markdown

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
	"go.abhg.dev/goldmark/frontmatter"
)

var ErrNoFrontmatter = errors.New("template has no front matter")

// Meta is the front matter of a mail template.
type Meta struct {
	Subject string `yaml:"subject"`
}

// Parser renders mail bodies. Raw HTML in the source is dropped and output
// is XHTML, which older mail clients handle best.
type Parser struct {
	md goldmark.Markdown
}

func NewParser() *Parser {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Typographer,
			&frontmatter.Extender{},
		),
		goldmark.WithRendererOptions(
			goldmarkhtml.WithHardWraps(),
			goldmarkhtml.WithXHTML(),
		),
	)

	return &Parser{
		md: md,
	}
}

func (p *Parser) Parse(source []byte) ([]byte, error) {
	var buf bytes.Buffer
	err := p.md.Convert(source, &buf)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseTemplate renders a template whose front matter carries its Meta.
func (p *Parser) ParseTemplate(source []byte) ([]byte, *Meta, error) {
	ctx := parser.NewContext()
	var buf bytes.Buffer

	err := p.md.Convert(source, &buf, parser.WithContext(ctx))
	if err != nil {
		return nil, nil, err
	}

	data := frontmatter.Get(ctx)
	if data == nil {
		return nil, nil, ErrNoFrontmatter
	}

	var meta Meta
	err = data.Decode(&meta)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode front matter: %w", err)
	}

	return buf.Bytes(), &meta, nil
}
