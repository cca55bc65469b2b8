package guard

import (
	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer strips markup that is not safe to show on a page. Script and
// style elements are dropped along with their content.
type Sanitizer struct {
	withSrc    *bluemonday.Policy
	withoutSrc *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		withSrc:    commentPolicy(true),
		withoutSrc: commentPolicy(false),
	}
}

func commentPolicy(allowSrc bool) *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowStandardURLs()
	p.AllowStandardAttributes()
	p.AllowElements(
		"p", "br", "div", "span", "hr",
		"b", "strong", "i", "em", "u", "s", "strike", "del", "ins",
		"small", "sub", "sup", "code", "pre", "kbd", "samp", "var",
		"blockquote", "q", "cite", "abbr",
		"h1", "h2", "h3", "h4", "h5", "h6",
	)
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("cite").OnElements("blockquote", "q")
	p.AllowLists()
	p.AllowTables()
	if allowSrc {
		p.AllowImages()
	}
	return p
}

// Sanitize returns the safe part of html. src attributes, and so images,
// survive only when allowSrc is set.
func (s *Sanitizer) Sanitize(html string, allowSrc bool) string {
	if allowSrc {
		return s.withSrc.Sanitize(html)
	}
	return s.withoutSrc.Sanitize(html)
}
