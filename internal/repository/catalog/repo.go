package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/kailas-cloud/agentpay/internal/domain"
	"github.com/kailas-cloud/agentpay/internal/domain/resource"
)

// Repo is a read-only in-memory catalog of priced resources.
type Repo struct {
	byID  map[string]resource.Resource
	order []string
}

// New builds a catalog. Duplicate IDs are rejected.
func New(items []resource.Resource) (*Repo, error) {
	r := &Repo{byID: make(map[string]resource.Resource, len(items))}
	for _, it := range items {
		if _, ok := r.byID[it.ID()]; ok {
			return nil, fmt.Errorf("duplicate resource %q", it.ID())
		}
		r.byID[it.ID()] = it
		r.order = append(r.order, it.ID())
	}
	sort.Strings(r.order)
	return r, nil
}

// List returns summaries whose name matches keyword, ordered by ID.
func (r *Repo) List(_ context.Context, keyword string) ([]resource.Summary, error) {
	out := make([]resource.Summary, 0, len(r.order))
	for _, id := range r.order {
		if res := r.byID[id]; res.Matches(keyword) {
			out = append(out, res.Summary())
		}
	}
	return out, nil
}

// Get returns a resource by ID.
func (r *Repo) Get(_ context.Context, id string) (resource.Resource, error) {
	res, ok := r.byID[id]
	if !ok {
		return resource.Resource{}, domain.ErrResourceNotFound
	}
	return res, nil
}
