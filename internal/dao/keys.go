package dao

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/courierd/courier"
	"github.com/modfin/henry/compare"
)

func (s *sqlite) AddKey(key *courier.Credential) error {
	q := `
	INSERT INTO email_key (user, pass, app, email_company, limit_count, sent_count, last_reset_date, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	db, err := s.getDB()
	if err != nil {
		return err
	}

	now := time.Now().In(time.UTC)
	key.LastResetDate = compare.Coalesce(key.LastResetDate, courier.Today())

	res, err := db.Exec(q, key.User, key.Pass, key.App, key.Company, key.LimitCount, key.SentCount, key.LastResetDate, now, now)
	if err != nil {
		return fmt.Errorf("could not insert email key: %w", err)
	}
	key.ID, err = res.LastInsertId()
	key.CreatedAt = now
	key.UpdatedAt = now
	return err
}

func (s *sqlite) GetKey(id int64) (*courier.Credential, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	var key courier.Credential
	err = db.Get(&key, `SELECT * FROM email_key WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("email key %d: %w", id, ErrNotFound)
	}
	return &key, err
}

func (s *sqlite) ListKeys() ([]courier.Credential, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	var keys []courier.Credential
	err = db.Select(&keys, `SELECT * FROM email_key ORDER BY id`)
	return keys, err
}

func (s *sqlite) ListKeysByApp(app string) ([]courier.Credential, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	var keys []courier.Credential
	err = db.Select(&keys, `SELECT * FROM email_key WHERE app = ? ORDER BY id`, app)
	return keys, err
}

func (s *sqlite) UpdateKey(id int64, patch courier.CredentialPatch) (key *courier.Credential, err error) {
	tx, err := s.getTX()
	if err != nil {
		return nil, err
	}
	defer finish(tx, &err)

	key = &courier.Credential{}
	err = tx.Get(key, `SELECT * FROM email_key WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("email key %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if patch.User != nil {
		key.User = *patch.User
	}
	if patch.Pass != nil {
		key.Pass = *patch.Pass
	}
	if patch.App != nil {
		key.App = *patch.App
	}
	if patch.Company != nil {
		key.Company = *patch.Company
	}
	if patch.LimitCount != nil {
		key.LimitCount = *patch.LimitCount
	}
	key.UpdatedAt = time.Now().In(time.UTC)

	q := `
	UPDATE email_key
	SET user = ?, pass = ?, app = ?, email_company = ?, limit_count = ?, updated_at = ?
	WHERE id = ?
	`
	_, err = tx.Exec(q, key.User, key.Pass, key.App, key.Company, key.LimitCount, key.UpdatedAt, id)
	return key, err
}

func (s *sqlite) DeleteKey(id int64) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	res, err := db.Exec(`DELETE FROM email_key WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("email key %d: %w", id, ErrNotFound)
	}
	return nil
}

// ClaimKeyQuota picks the eligible credential of the application with the
// lowest usage ratio (ties broken by earliest reset date, then id) and
// reserves one quota unit, all within a single transaction. The guarded
// update is what keeps sent_count from ever racing past limit_count.
func (s *sqlite) ClaimKeyQuota(app, today string) (key *courier.Credential, err error) {
	q := `
	SELECT * FROM email_key
	WHERE app = ?
	  AND sent_count < limit_count
	ORDER BY (CAST(sent_count AS REAL) / limit_count) ASC, last_reset_date ASC, id ASC
	`
	tx, err := s.getTX()
	if err != nil {
		return nil, err
	}
	defer finish(tx, &err)

	var candidates []courier.Credential
	err = tx.Select(&candidates, q, app)
	if err != nil {
		return nil, err
	}

	now := time.Now().In(time.UTC)
	for i := range candidates {
		c := candidates[i]
		res, uerr := tx.Exec(`
			UPDATE email_key
			SET sent_count = sent_count + 1, updated_at = ?
			WHERE id = ? AND sent_count < limit_count`, now, c.ID)
		if uerr != nil {
			err = uerr
			return nil, err
		}
		affected, uerr := res.RowsAffected()
		if uerr != nil {
			err = uerr
			return nil, err
		}
		if affected != 1 {
			continue
		}
		c.SentCount++
		c.UpdatedAt = now
		return &c, nil
	}

	err = fmt.Errorf("no eligible email key for app %s on %s: %w", app, today, ErrNotFound)
	return nil, err
}

// ReleaseKeyQuota hands a reserved unit back after a failed transport send.
func (s *sqlite) ReleaseKeyQuota(id int64) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		UPDATE email_key
		SET sent_count = sent_count - 1, updated_at = ?
		WHERE id = ? AND sent_count > 0`, time.Now().In(time.UTC), id)
	return err
}

// ResetKeyQuotas zeroes usage for every credential whose last reset is
// before today. The date comparison is the guard, re-running is a no-op.
func (s *sqlite) ResetKeyQuotas(today string) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	res, err := db.Exec(`
		UPDATE email_key
		SET sent_count = 0, last_reset_date = ?, updated_at = ?
		WHERE last_reset_date < ?`, today, time.Now().In(time.UTC), today)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqlite) KeySummary() (courier.KeyStatistics, error) {
	sum := courier.KeyStatistics{ByApp: map[string]courier.AppKeyStats{}}

	db, err := s.getDB()
	if err != nil {
		return sum, err
	}

	var rows []struct {
		App   string `db:"app"`
		Count int    `db:"count"`
		Limit int    `db:"total_limit"`
	}
	err = db.Select(&rows, `
		SELECT app, COUNT(*) AS count, SUM(limit_count) AS total_limit
		FROM email_key
		GROUP BY app`)
	if err != nil {
		return sum, err
	}

	for _, r := range rows {
		sum.Total += r.Count
		sum.ByApp[r.App] = courier.AppKeyStats{Count: r.Count, TotalDailyLimit: r.Limit}
	}
	return sum, nil
}
