package resource

import (
	"fmt"
	"strings"
)

// Summary is the free-tier view of a resource.
type Summary struct {
	ID   string
	Name string
}

// Resource is a catalog entry whose detail may be priced.
type Resource struct {
	id          string
	name        string
	description string
	price       int64
}

// New validates and creates a Resource. A zero price means the detail is free.
func New(id, name, description string, price int64) (Resource, error) {
	if id == "" {
		return Resource{}, fmt.Errorf("resource ID is required")
	}
	if strings.TrimSpace(name) == "" {
		return Resource{}, fmt.Errorf("resource name is required")
	}
	if price < 0 {
		return Resource{}, fmt.Errorf("resource price must not be negative, got %d", price)
	}
	return Resource{id: id, name: name, description: description, price: price}, nil
}

// ID returns the resource identifier.
func (r Resource) ID() string { return r.id }

// Name returns the display name.
func (r Resource) Name() string { return r.name }

// Description returns the premium detail body.
func (r Resource) Description() string { return r.description }

// Price returns the detail price.
func (r Resource) Price() int64 { return r.price }

// IsFree reports whether the detail can be served without a token.
func (r Resource) IsFree() bool { return r.price == 0 }

// Summary returns the free-tier view.
func (r Resource) Summary() Summary { return Summary{ID: r.id, Name: r.name} }

// Matches reports a case-insensitive substring match of keyword on the name.
// An empty keyword matches everything.
func (r Resource) Matches(keyword string) bool {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.name), strings.ToLower(keyword))
}
