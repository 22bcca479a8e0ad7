package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/agentpay/internal/domain"
	"github.com/kailas-cloud/agentpay/internal/domain/resource"
)

func mustResource(t *testing.T, id, name string, price int64) resource.Resource {
	t.Helper()
	r, err := resource.New(id, name, name+" detail", price)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestList(t *testing.T) {
	repo, err := New([]resource.Resource{
		mustResource(t, "2", "Globex", 5),
		mustResource(t, "1", "ACME Corp", 10),
	})
	if err != nil {
		t.Fatal(err)
	}

	all, _ := repo.List(context.Background(), "")
	if len(all) != 2 || all[0].ID != "1" {
		t.Errorf("List(\"\") = %+v", all)
	}
	got, _ := repo.List(context.Background(), "acme")
	if len(got) != 1 || got[0].Name != "ACME Corp" {
		t.Errorf("List(acme) = %+v", got)
	}
	none, _ := repo.List(context.Background(), "initech")
	if len(none) != 0 {
		t.Errorf("List(initech) = %+v", none)
	}
}

func TestGet(t *testing.T) {
	repo, _ := New([]resource.Resource{mustResource(t, "1", "ACME Corp", 10)})
	r, err := repo.Get(context.Background(), "1")
	if err != nil || r.Price() != 10 {
		t.Errorf("Get(1) = %+v, %v", r, err)
	}
	if _, err := repo.Get(context.Background(), "9"); !errors.Is(err, domain.ErrResourceNotFound) {
		t.Errorf("Get(9) error = %v", err)
	}
}

func TestNew_Duplicate(t *testing.T) {
	_, err := New([]resource.Resource{mustResource(t, "1", "A", 1), mustResource(t, "1", "B", 1)})
	if err == nil {
		t.Error("expected duplicate error")
	}
}
