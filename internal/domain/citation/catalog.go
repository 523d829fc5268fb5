package citation

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/turtacn/FCE-Intelligence/pkg/errors"
	"github.com/turtacn/FCE-Intelligence/pkg/fce"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// CatalogTest is one test entry of the catalog.
type CatalogTest struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	Citations []string `yaml:"citations"`
}

// Record returns the engine input for this entry.
func (t CatalogTest) Record() fce.TestRecord {
	return fce.TestRecord{TestID: t.ID, TestName: t.Name}
}

type catalogFile struct {
	Citations []*Citation   `yaml:"citations"`
	Tests     []CatalogTest `yaml:"tests"`
}

// Catalog is the immutable built-in reference table. It is safe for
// concurrent use.
type Catalog struct {
	tests   []CatalogTest
	byTest  map[string][]*Citation
	sources map[string]*Citation
}

// LoadCatalog parses a catalog document. Every test must reference citations
// declared in the same document, and ids must be unique.
func LoadCatalog(data []byte) (*Catalog, error) {
	var doc catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCitationCatalogBroken, "failed to decode citation catalog")
	}

	cat := &Catalog{
		byTest:  make(map[string][]*Citation, len(doc.Tests)),
		sources: make(map[string]*Citation, len(doc.Citations)),
	}
	for _, c := range doc.Citations {
		if _, dup := cat.sources[c.ID]; dup {
			return nil, errors.New(errors.ErrCodeCitationCatalogBroken, "duplicate citation id").WithDetail(c.ID)
		}
		cat.sources[c.ID] = c
	}
	for _, t := range doc.Tests {
		if _, dup := cat.byTest[t.ID]; dup {
			return nil, errors.New(errors.ErrCodeCitationCatalogBroken, "duplicate test id").WithDetail(t.ID)
		}
		cites := make([]*Citation, 0, len(t.Citations))
		for _, ref := range t.Citations {
			src, ok := cat.sources[ref]
			if !ok {
				return nil, errors.New(errors.ErrCodeCitationCatalogBroken, "test references unknown citation").
					WithDetail(fmt.Sprintf("test=%s citation=%s", t.ID, ref))
			}
			c := src.ForTest(t.ID)
			if err := c.Validate(); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeCitationCatalogBroken, "invalid catalog citation")
			}
			cites = append(cites, c)
		}
		cat.byTest[t.ID] = cites
		cat.tests = append(cat.tests, t)
	}
	return cat, nil
}

// Builtin returns the catalog compiled into the binary.
func Builtin() (*Catalog, error) {
	return LoadCatalog(builtinCatalog)
}

// MustBuiltin is Builtin for package-level initialisation; the embedded
// document is covered by tests so a failure here is a build defect.
func MustBuiltin() *Catalog {
	cat, err := Builtin()
	if err != nil {
		panic(err)
	}
	return cat
}

// Resolve returns copies of the citations for testID, or an empty list.
func (c *Catalog) Resolve(_ context.Context, testID string) ([]*Citation, error) {
	src := c.byTest[testID]
	out := make([]*Citation, len(src))
	for i, cite := range src {
		clone := *cite
		out[i] = &clone
	}
	return out, nil
}

// TestIDs returns the catalogued test ids, sorted.
func (c *Catalog) TestIDs() []string {
	ids := make([]string, 0, len(c.byTest))
	for id := range c.byTest {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Tests returns the catalogued tests in document order.
func (c *Catalog) Tests() []CatalogTest {
	out := make([]CatalogTest, len(c.tests))
	copy(out, c.tests)
	return out
}

// Len is the number of distinct sources.
func (c *Catalog) Len() int { return len(c.sources) }
