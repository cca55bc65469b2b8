package guard

import (
	"fmt"
	"strings"
)

const DefaultMaxLinks = 4

// ContentChecker rejects content that looks like link spam.
type ContentChecker struct {
	MaxLinks int
}

func NewContentChecker() *ContentChecker {
	return &ContentChecker{MaxLinks: DefaultMaxLinks}
}

func (c *ContentChecker) Check(content string) error {
	lower := strings.ToLower(content)
	if n := strings.Count(lower, "<a href"); n > c.MaxLinks {
		return fmt.Errorf("%w: %d links", ErrSpam, n)
	}
	if strings.Contains(lower, "[url=") {
		return fmt.Errorf("%w: url markup", ErrSpam)
	}
	return nil
}
