package guard

import (
	"github.com/russross/blackfriday/v2"
)

const markdownExtensions = blackfriday.NoIntraEmphasis |
	blackfriday.Tables |
	blackfriday.FencedCode |
	blackfriday.Autolink |
	blackfriday.Strikethrough |
	blackfriday.SpaceHeadings |
	blackfriday.HardLineBreak

// RenderMarkdown turns markdown into HTML. The result is not safe to show
// until it has been sanitized.
func RenderMarkdown(src string) string {
	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.UseXHTML |
			blackfriday.Smartypants |
			blackfriday.SmartypantsFractions |
			blackfriday.SmartypantsLatexDashes,
	})
	return string(blackfriday.Run([]byte(src),
		blackfriday.WithExtensions(markdownExtensions),
		blackfriday.WithRenderer(renderer)))
}
