package backend

import (
	"context"
	"strconv"
	"strings"

	"github.com/nimasrn/crm-dispatch/internal/errs"
	"github.com/nimasrn/crm-dispatch/internal/restclient"
)

// Resource is a conventional REST collection of T under path.
type Resource[T any] struct {
	rc   *restclient.Client
	path string
}

func NewResource[T any](rc *restclient.Client, path string) *Resource[T] {
	return &Resource[T]{rc: rc, path: "/" + strings.Trim(path, "/")}
}

func (r *Resource[T]) Path() string {
	return r.path
}

func (r *Resource[T]) List(ctx context.Context) ([]T, error) {
	return restclient.GetList[T](ctx, r.rc, r.path, restclient.Config{})
}

func (r *Resource[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	return restclient.GetOne[T](ctx, r.rc, r.path+"/"+id, restclient.Config{})
}

func (r *Resource[T]) Create(ctx context.Context, body any) (*T, error) {
	return restclient.Send[T](ctx, r.rc, r.path, restclient.MethodPost, body, restclient.Config{})
}

func (r *Resource[T]) Update(ctx context.Context, id string, body any) (*T, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	return restclient.Send[T](ctx, r.rc, r.path+"/"+id, restclient.MethodPut, body, restclient.Config{})
}

func (r *Resource[T]) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	_, err := r.rc.Request(ctx, r.path+"/"+id, restclient.MethodDelete, nil, restclient.Config{})
	return err
}

// ID renders a numeric id for the Resource methods.
func ID(n int64) string {
	return strconv.FormatInt(n, 10)
}

func checkID(id string) error {
	if id == "" || strings.ContainsAny(id, "/?#") {
		return errs.Validation("invalid resource id %q", id)
	}
	return nil
}
