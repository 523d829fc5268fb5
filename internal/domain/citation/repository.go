package citation

import (
	"context"
)

// Resolver maps a test id to its citations. An unknown id resolves to an
// empty list, never to an error.
type Resolver interface {
	Resolve(ctx context.Context, testID string) ([]*Citation, error)
}

// ResolverFunc adapts a plain function to Resolver.
type ResolverFunc func(ctx context.Context, testID string) ([]*Citation, error)

func (f ResolverFunc) Resolve(ctx context.Context, testID string) ([]*Citation, error) {
	return f(ctx, testID)
}

// Repository is the persistent citation store.
type Repository interface {
	FindByTestID(ctx context.Context, testID string) ([]*Citation, error)
	Upsert(ctx context.Context, c *Citation) error
	Delete(ctx context.Context, testID, citationID string) error
	ListTestIDs(ctx context.Context) ([]string, error)
}

// RepositoryResolver serves lookups from repo.
func RepositoryResolver(repo Repository) Resolver {
	return ResolverFunc(repo.FindByTestID)
}

// Fallback consults primary first and falls through to secondary when primary
// has nothing for the test id. Errors from primary are returned as is.
func Fallback(primary, secondary Resolver) Resolver {
	return ResolverFunc(func(ctx context.Context, testID string) ([]*Citation, error) {
		out, err := primary.Resolve(ctx, testID)
		if err != nil {
			return nil, err
		}
		if len(out) > 0 {
			return out, nil
		}
		return secondary.Resolve(ctx, testID)
	})
}

// Seed upserts every citation of cat into repo and returns how many rows were
// written.
func Seed(ctx context.Context, repo Repository, cat *Catalog) (int, error) {
	n := 0
	for _, testID := range cat.TestIDs() {
		cites, _ := cat.Resolve(ctx, testID)
		for _, c := range cites {
			if err := repo.Upsert(ctx, c); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}
