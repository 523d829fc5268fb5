// Package citation holds the reference-literature records attached to report
// entries. Citations are keyed by the same test id the engine classifies, so
// a report can list the sources behind every norm it prints.
package citation

import (
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

// Citation is one bibliography entry for a functional test.
type Citation struct {
	// ID is a stable slug such as "mathiowetz-1985", shared by every test that
	// cites the same source.
	ID      string `json:"id" yaml:"id"`
	TestID  string `json:"testId" yaml:"-"`
	Authors string `json:"authors" yaml:"authors"`
	Title   string `json:"title" yaml:"title"`
	// Source is the journal abbreviation or the book publisher.
	Source    string    `json:"source" yaml:"source"`
	Year      int       `json:"year" yaml:"year"`
	Volume    string    `json:"volume,omitempty" yaml:"volume,omitempty"`
	Pages     string    `json:"pages,omitempty" yaml:"pages,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"-"`
}

// Validate checks the fields required to render a bibliography line.
func (c *Citation) Validate() error {
	switch {
	case c == nil:
		return errors.New(errors.ErrCodeCitationInvalid, "citation is nil")
	case strings.TrimSpace(c.ID) == "":
		return errors.New(errors.ErrCodeCitationInvalid, "citation id is required")
	case strings.TrimSpace(c.TestID) == "":
		return errors.New(errors.ErrCodeCitationInvalid, "citation test id is required").WithDetail("id=" + c.ID)
	case strings.TrimSpace(c.Authors) == "":
		return errors.New(errors.ErrCodeCitationInvalid, "citation authors are required").WithDetail("id=" + c.ID)
	case strings.TrimSpace(c.Title) == "":
		return errors.New(errors.ErrCodeCitationInvalid, "citation title is required").WithDetail("id=" + c.ID)
	case c.Year < 0 || c.Year > time.Now().Year()+1:
		return errors.New(errors.ErrCodeCitationInvalid, "citation year is out of range").WithDetail(fmt.Sprintf("id=%s year=%d", c.ID, c.Year))
	}
	return nil
}

// String renders the entry in a compact Vancouver style:
//
//	Authors. Title. Source. Year;Volume:Pages.
//
// Books without a volume render as "Publisher; Year."
func (c *Citation) String() string {
	var b strings.Builder
	sentence(&b, c.Authors)
	sentence(&b, c.Title)
	b.WriteString(strings.TrimSpace(c.Source))
	switch {
	case c.Year > 0 && c.Volume != "":
		fmt.Fprintf(&b, ". %d;%s", c.Year, c.Volume)
	case c.Year > 0:
		fmt.Fprintf(&b, "; %d", c.Year)
	}
	if c.Pages != "" {
		b.WriteString(":" + c.Pages)
	}
	b.WriteByte('.')
	return b.String()
}

func sentence(b *strings.Builder, s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	b.WriteString(s)
	if !strings.HasSuffix(s, ".") && !strings.HasSuffix(s, "?") {
		b.WriteByte('.')
	}
	b.WriteByte(' ')
}

// ForTest returns a copy of c bound to testID.
func (c *Citation) ForTest(testID string) *Citation {
	clone := *c
	clone.TestID = testID
	return &clone
}
