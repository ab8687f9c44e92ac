package app

import (
	"context"
	"errors"
	"strings"

	"wagate/internal/store"
)

// TemplateService is thin CRUD over the template store.
type TemplateService struct {
	templates store.TemplateStore
}

func NewTemplateService(templates store.TemplateStore) *TemplateService {
	return &TemplateService{templates: templates}
}

func (svc *TemplateService) Create(ctx context.Context, name, content string) (*store.Template, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ValidationError("template name is required")
	}
	if content == "" {
		return nil, ValidationError("template content is required")
	}
	tpl, err := svc.templates.CreateTemplate(ctx, name, content)
	if err != nil {
		return nil, PersistenceError(err)
	}
	return tpl, nil
}

func (svc *TemplateService) Get(ctx context.Context, id int64) (*store.Template, error) {
	tpl, err := svc.templates.GetTemplate(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFoundError("template")
	}
	if err != nil {
		return nil, PersistenceError(err)
	}
	return tpl, nil
}

func (svc *TemplateService) List(ctx context.Context) ([]store.Template, error) {
	templates, err := svc.templates.ListTemplates(ctx)
	if err != nil {
		return nil, PersistenceError(err)
	}
	return templates, nil
}

func (svc *TemplateService) Update(ctx context.Context, id int64, name, content string) (*store.Template, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ValidationError("template name is required")
	}
	tpl, err := svc.templates.UpdateTemplate(ctx, id, name, content)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFoundError("template")
	}
	if err != nil {
		return nil, PersistenceError(err)
	}
	return tpl, nil
}

func (svc *TemplateService) Delete(ctx context.Context, id int64) error {
	err := svc.templates.DeleteTemplate(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return NotFoundError("template")
	}
	if err != nil {
		return PersistenceError(err)
	}
	return nil
}
