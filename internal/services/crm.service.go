package services

import (
	"context"
	"encoding/json"

	"github.com/nimasrn/crm-dispatch/internal/backend"
)

// RawResources is satisfied by *backend.Client.
type RawResources interface {
	Raw(name string) (*backend.Resource[json.RawMessage], error)
	ResourceNames() []string
}

// CRMService proxies the CRM collections untouched, only the response
// envelope is normalized.
type CRMService struct {
	backend RawResources
}

func NewCRMService(b RawResources) *CRMService {
	return &CRMService{backend: b}
}

func (s *CRMService) Resources() []string {
	return s.backend.ResourceNames()
}

func (s *CRMService) List(ctx context.Context, resource string) ([]json.RawMessage, error) {
	r, err := s.backend.Raw(resource)
	if err != nil {
		return nil, err
	}
	return r.List(ctx)
}

func (s *CRMService) Get(ctx context.Context, resource, id string) (json.RawMessage, error) {
	r, err := s.backend.Raw(resource)
	if err != nil {
		return nil, err
	}
	item, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return *item, nil
}

func (s *CRMService) Create(ctx context.Context, resource string, body json.RawMessage) (json.RawMessage, error) {
	r, err := s.backend.Raw(resource)
	if err != nil {
		return nil, err
	}
	item, err := r.Create(ctx, body)
	if err != nil || item == nil {
		return nil, err
	}
	return *item, nil
}

func (s *CRMService) Update(ctx context.Context, resource, id string, body json.RawMessage) (json.RawMessage, error) {
	r, err := s.backend.Raw(resource)
	if err != nil {
		return nil, err
	}
	item, err := r.Update(ctx, id, body)
	if err != nil || item == nil {
		return nil, err
	}
	return *item, nil
}

func (s *CRMService) Delete(ctx context.Context, resource, id string) error {
	r, err := s.backend.Raw(resource)
	if err != nil {
		return err
	}
	return r.Delete(ctx, id)
}
