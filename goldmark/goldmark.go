// Package goldmark renders agent answers, which are usually markdown, to
// ANSI-styled terminal text. Parsing is done by goldmark; styling by
// lipgloss.
package goldmark

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/agentstream"
	"github.com/mattn/go-runewidth"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

const (
	defaultWidth = 80
	minItemWidth = 10
)

// Renderer renders markdown with a fixed theme. It is safe for concurrent
// use.
type Renderer struct {
	parser    parser.Parser
	content   lipgloss.Style
	bold      lipgloss.Style
	italic    lipgloss.Style
	code      lipgloss.Style
	accent    lipgloss.Style
	muted     lipgloss.Style
	underline lipgloss.Style
}

// New returns a Renderer for theme.
func New(theme agentstream.Theme) *Renderer {
	return &Renderer{
		parser:    goldmark.DefaultParser(),
		content:   lipgloss.NewStyle().Foreground(ansiColor(theme.Content)),
		bold:      lipgloss.NewStyle().Bold(true),
		italic:    lipgloss.NewStyle().Italic(true),
		code:      lipgloss.NewStyle().Background(ansiColor(theme.CodeBg)),
		accent:    lipgloss.NewStyle().Foreground(ansiColor(theme.Accent)).Bold(true),
		muted:     lipgloss.NewStyle().Foreground(ansiColor(theme.Muted)).Faint(true),
		underline: lipgloss.NewStyle().Underline(true),
	}
}

// Render is shorthand for New(theme).Render(source, width).
func Render(source string, width int, theme agentstream.Theme) string {
	return New(theme).Render(source, width)
}

// Render returns source as styled text. Paragraphs and list items wrap at
// width; code is never reflowed. A non-positive width means 80 columns.
func (r *Renderer) Render(source string, width int) string {
	if source == "" {
		return ""
	}
	if width <= 0 {
		width = defaultWidth
	}
	src := []byte(source)
	doc := r.parser.Parse(text.NewReader(src))

	var buf bytes.Buffer
	r.blocks(doc, src, width, &buf)
	return strings.TrimRight(buf.String(), "\n")
}

func ansiColor(index int) lipgloss.TerminalColor {
	if index < 0 {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(strconv.Itoa(index))
}

func (r *Renderer) blocks(node ast.Node, src []byte, width int, buf *bytes.Buffer) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		r.block(c, src, width, buf)
		if c.NextSibling() != nil && c.Kind() != ast.KindHTMLBlock {
			buf.WriteString("\n")
		}
	}
}

func (r *Renderer) block(node ast.Node, src []byte, width int, buf *bytes.Buffer) {
	switch n := node.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		r.wrap(r.content.Render(r.inlines(n, src)), width, buf)

	case *ast.Heading:
		r.wrap(r.accent.Render(r.inlines(n, src)), width, buf)

	case *ast.FencedCodeBlock:
		if lang := n.Language(src); len(lang) > 0 {
			buf.WriteString(r.muted.Render(string(lang)) + "\n")
		}
		r.codeLines(n, src, buf)

	case *ast.CodeBlock:
		r.codeLines(n, src, buf)

	case *ast.List:
		r.list(n, src, width, buf, 0)

	case *ast.Blockquote:
		var inner bytes.Buffer
		r.blocks(n, src, max(width-2, minItemWidth), &inner)
		bar := r.muted.Render("│") + " "
		for _, line := range strings.Split(strings.TrimRight(inner.String(), "\n"), "\n") {
			buf.WriteString(bar + line + "\n")
		}

	case *ast.ThematicBreak:
		buf.WriteString(r.muted.Render(strings.Repeat("─", width)) + "\n")

	case *ast.HTMLBlock:
		lines := n.Lines()
		for i := range lines.Len() {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}

	default:
		r.blocks(node, src, width, buf)
	}
}

func (r *Renderer) wrap(s string, width int, buf *bytes.Buffer) {
	buf.WriteString(lipgloss.NewStyle().Width(width).Render(s))
	buf.WriteString("\n")
}

func (r *Renderer) codeLines(n ast.Node, src []byte, buf *bytes.Buffer) {
	gutter := r.muted.Render("│") + " "
	lines := n.Lines()
	for i := range lines.Len() {
		seg := lines.At(i)
		line := strings.TrimRight(string(seg.Value(src)), "\n")
		buf.WriteString(gutter + r.code.Render(line) + "\n")
	}
}

func (r *Renderer) list(n *ast.List, src []byte, width int, buf *bytes.Buffer, depth int) {
	num := n.Start
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		item, ok := c.(*ast.ListItem)
		if !ok {
			continue
		}
		marker := "- "
		if n.IsOrdered() {
			marker = fmt.Sprintf("%d. ", num)
			num++
		}
		indent := strings.Repeat("  ", depth)

		var body strings.Builder
		for ic := item.FirstChild(); ic != nil; ic = ic.NextSibling() {
			switch in := ic.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				body.WriteString(r.inlines(in, src))
			case *ast.List:
				if body.Len() > 0 {
					r.item(indent+marker, body.String(), width, buf)
					body.Reset()
				}
				r.list(in, src, width, buf, depth+1)
				// Text after a nested list continues the item unmarked.
				marker = strings.Repeat(" ", runewidth.StringWidth(marker))
			default:
				var nested bytes.Buffer
				r.block(ic, src, width, &nested)
				body.WriteString(nested.String())
			}
		}
		if body.Len() > 0 {
			r.item(indent+marker, body.String(), width, buf)
		}
	}
}

// item writes one list item, indenting continuation lines under the text.
func (r *Renderer) item(prefix, content string, width int, buf *bytes.Buffer) {
	pw := runewidth.StringWidth(prefix)
	wrapped := lipgloss.NewStyle().Width(max(width-pw, minItemWidth)).Render(content)
	pad := strings.Repeat(" ", pw)
	for i, line := range strings.Split(wrapped, "\n") {
		if i == 0 {
			buf.WriteString(prefix + line + "\n")
			continue
		}
		buf.WriteString(pad + line + "\n")
	}
}

func (r *Renderer) inlines(node ast.Node, src []byte) string {
	var buf bytes.Buffer
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		r.inline(c, src, &buf)
	}
	return buf.String()
}

func (r *Renderer) inline(node ast.Node, src []byte, buf *bytes.Buffer) {
	switch n := node.(type) {
	case *ast.Text:
		buf.Write(n.Segment.Value(src))
		switch {
		case n.HardLineBreak():
			buf.WriteByte('\n')
		case n.SoftLineBreak():
			buf.WriteByte(' ')
		}

	case *ast.String:
		buf.Write(n.Value)

	case *ast.Emphasis:
		if n.Level == 1 {
			buf.WriteString(r.italic.Render(r.inlines(n, src)))
		} else {
			buf.WriteString(r.bold.Render(r.inlines(n, src)))
		}

	case *ast.CodeSpan:
		buf.WriteString(r.bold.Render(r.inlines(n, src)))

	case *ast.Link:
		buf.WriteString(r.underline.Render(r.inlines(n, src)))
		buf.WriteString(" " + r.muted.Render("("+string(n.Destination)+")"))

	case *ast.Image:
		buf.WriteString(r.underline.Render(r.inlines(n, src)))
		buf.WriteString(" " + r.muted.Render("("+string(n.Destination)+")"))

	case *ast.AutoLink:
		buf.WriteString(r.underline.Render(string(n.URL(src))))

	case *ast.RawHTML:
		for i := range n.Segments.Len() {
			seg := n.Segments.At(i)
			buf.Write(seg.Value(src))
		}

	default:
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			r.inline(c, src, buf)
		}
	}
}
