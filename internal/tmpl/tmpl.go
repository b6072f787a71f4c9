// Package tmpl is the template store: lookup plus placeholder rendering for
// dispatch, and CRUD passthrough for the admin surface.
package tmpl

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/courierd/courier"
	"github.com/courierd/courier/internal/dao"
)

var ErrNotFound = errors.New("template not found")

// Store is the slice of the DAO the template store needs.
type Store interface {
	AddTemplate(t *courier.Template) error
	GetTemplate(id int64) (*courier.Template, error)
	ListTemplates() ([]courier.Template, error)
	UpdateTemplate(id int64, patch courier.TemplatePatch) (*courier.Template, error)
	DeleteTemplate(id int64) error
}

func New(store Store) *Templates {
	return &Templates{store: store}
}

type Templates struct {
	store Store
}

func (t *Templates) Get(id int64) (*courier.Template, error) {
	res, err := t.store.GetTemplate(id)
	if errors.Is(err, dao.ErrNotFound) {
		return nil, fmt.Errorf("template %d: %w", id, ErrNotFound)
	}
	return res, err
}

func (t *Templates) List() ([]courier.Template, error) {
	return t.store.ListTemplates()
}

func (t *Templates) Add(template *courier.Template) error {
	return t.store.AddTemplate(template)
}

func (t *Templates) Update(id int64, patch courier.TemplatePatch) (*courier.Template, error) {
	res, err := t.store.UpdateTemplate(id, patch)
	if errors.Is(err, dao.ErrNotFound) {
		return nil, fmt.Errorf("template %d: %w", id, ErrNotFound)
	}
	return res, err
}

func (t *Templates) Delete(id int64) error {
	err := t.store.DeleteTemplate(id)
	if errors.Is(err, dao.ErrNotFound) {
		return fmt.Errorf("template %d: %w", id, ErrNotFound)
	}
	return err
}

var placeholder = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Render substitutes {{name}} placeholders in the subject and content with
// values from data. Placeholders without a value stay verbatim, a missing
// variable must not fail a best-effort notification. Render has no side
// effects and is safe for concurrent dispatch workers.
func Render(t *courier.Template, data map[string]any) (subject, content string) {
	return substitute(t.Subject, data), substitute(t.Content, data)
}

func substitute(s string, data map[string]any) string {
	if len(data) == 0 {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholder.FindStringSubmatch(match)[1]
		value, ok := data[name]
		if !ok {
			return match
		}
		return fmt.Sprint(value)
	})
}
