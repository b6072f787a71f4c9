package dao

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/courierd/courier"
)

func (s *sqlite) AddTemplate(t *courier.Template) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	now := time.Now().In(time.UTC)
	res, err := db.Exec(`
		INSERT INTO email_template (name, subject, content, type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.Name, t.Subject, t.Content, t.Type, now, now)
	if err != nil {
		return fmt.Errorf("could not insert template: %w", err)
	}
	t.ID, err = res.LastInsertId()
	t.CreatedAt = now
	t.UpdatedAt = now
	return err
}

func (s *sqlite) GetTemplate(id int64) (*courier.Template, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	var t courier.Template
	err = db.Get(&t, `SELECT * FROM email_template WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template %d: %w", id, ErrNotFound)
	}
	return &t, err
}

func (s *sqlite) ListTemplates() ([]courier.Template, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	var ts []courier.Template
	err = db.Select(&ts, `SELECT * FROM email_template ORDER BY id`)
	return ts, err
}

func (s *sqlite) UpdateTemplate(id int64, patch courier.TemplatePatch) (t *courier.Template, err error) {
	tx, err := s.getTX()
	if err != nil {
		return nil, err
	}
	defer finish(tx, &err)

	t = &courier.Template{}
	err = tx.Get(t, `SELECT * FROM email_template WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		t.Name = *patch.Name
	}
	if patch.Subject != nil {
		t.Subject = *patch.Subject
	}
	if patch.Content != nil {
		t.Content = *patch.Content
	}
	if patch.Type != nil {
		t.Type = *patch.Type
	}
	t.UpdatedAt = time.Now().In(time.UTC)

	_, err = tx.Exec(`
		UPDATE email_template
		SET name = ?, subject = ?, content = ?, type = ?, updated_at = ?
		WHERE id = ?`,
		t.Name, t.Subject, t.Content, t.Type, t.UpdatedAt, id)
	return t, err
}

func (s *sqlite) DeleteTemplate(id int64) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	res, err := db.Exec(`DELETE FROM email_template WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("template %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *sqlite) CountTemplates() (int, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	var n int
	err = db.Get(&n, `SELECT COUNT(*) FROM email_template`)
	return n, err
}
