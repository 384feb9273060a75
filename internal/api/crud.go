package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Devmainman/kurosadmin/internal/resource"
)

// CRUD is the uniform list/get/create/update/delete client for one entity
// type.
type CRUD[T any] struct {
	client *Client
	typ    resource.Type
}

// NewCRUD returns the CRUD client for t.
func NewCRUD[T any](client *Client, t resource.Type) *CRUD[T] {
	return &CRUD[T]{client: client, typ: t}
}

// Type returns the entity type served by this client.
func (r *CRUD[T]) Type() resource.Type {
	return r.typ
}

// List fetches the collection under params (search, page, limit, filters).
func (r *CRUD[T]) List(ctx context.Context, params url.Values) ([]T, error) {
	out := []T{}
	err := r.client.do(ctx, call{
		method: http.MethodGet,
		path:   resource.CollectionKey(r.typ, nil).Path(),
		query:  params,
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches one entity.
func (r *CRUD[T]) Get(ctx context.Context, id string) (*T, error) {
	var out T
	if err := r.client.do(ctx, call{method: http.MethodGet, path: resource.DetailKey(r.typ, id).Path(), out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create submits a new entity and returns the server's copy.
func (r *CRUD[T]) Create(ctx context.Context, payload any) (*T, error) {
	var out T
	err := r.client.do(ctx, call{
		method: http.MethodPost,
		path:   resource.CollectionKey(r.typ, nil).Path(),
		body:   payload,
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Update replaces an entity and returns the server's copy.
func (r *CRUD[T]) Update(ctx context.Context, id string, payload any) (*T, error) {
	var out T
	err := r.client.do(ctx, call{
		method: http.MethodPut,
		path:   resource.DetailKey(r.typ, id).Path(),
		body:   payload,
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes an entity.
func (r *CRUD[T]) Delete(ctx context.Context, id string) error {
	return r.client.do(ctx, call{method: http.MethodDelete, path: resource.DetailKey(r.typ, id).Path()})
}

// entity is the type-erased view of a CRUD client used by Registry.
type entity interface {
	fetch(ctx context.Context, key resource.Key) (any, error)
	create(ctx context.Context, payload any) (any, error)
	update(ctx context.Context, id string, payload any) (any, error)
	remove(ctx context.Context, id string) error
}

func (r *CRUD[T]) fetch(ctx context.Context, key resource.Key) (any, error) {
	if key.IsCollection() {
		return r.List(ctx, key.Query())
	}
	return r.Get(ctx, key.ID)
}

func (r *CRUD[T]) create(ctx context.Context, payload any) (any, error) {
	return r.Create(ctx, payload)
}

func (r *CRUD[T]) update(ctx context.Context, id string, payload any) (any, error) {
	return r.Update(ctx, id, payload)
}

func (r *CRUD[T]) remove(ctx context.Context, id string) error {
	return r.Delete(ctx, id)
}

func errMissing(what string) error {
	return fmt.Errorf("%s response has no %s", source, what)
}
