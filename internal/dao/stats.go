package dao

import (
	"fmt"
)

// IncrementStat upserts the (app, date) record and bumps the counter for
// the outcome. The single statement keeps concurrent increments for the
// same key from losing updates.
func (s *sqlite) IncrementStat(app, date string, outcome Outcome) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	switch outcome {
	case OutcomeSent:
		_, err = db.Exec(`
			INSERT INTO stat (app, date, sent, failed) VALUES (?, ?, 1, 0)
			ON CONFLICT (app, date) DO UPDATE SET sent = sent + 1`, app, date)
	case OutcomeFailed:
		_, err = db.Exec(`
			INSERT INTO stat (app, date, sent, failed) VALUES (?, ?, 0, 1)
			ON CONFLICT (app, date) DO UPDATE SET failed = failed + 1`, app, date)
	default:
		return fmt.Errorf("unknown outcome %q", outcome)
	}
	return err
}

// StatRange returns records for the app within [start, end], date ascending.
// Days without sends have no record and are simply absent.
func (s *sqlite) StatRange(app, start, end string) ([]StatRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	var records []StatRecord
	err = db.Select(&records, `
		SELECT * FROM stat
		WHERE app = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`, app, start, end)
	return records, err
}
