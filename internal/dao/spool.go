package dao

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/courierd/courier"
)

// jobRow is the raw table shape. JSON columns are unpacked into the Job's
// typed fields on the way out.
type jobRow struct {
	Job
	TemplateData string `db:"template_data"`
	CC           string `db:"cc"`
	BCC          string `db:"bcc"`
}

func (r *jobRow) unpack() (*Job, error) {
	job := r.Job
	if err := json.Unmarshal([]byte(r.TemplateData), &job.TemplateData); err != nil {
		return nil, fmt.Errorf("could not unmarshal template data of job %s: %w", job.ID, err)
	}
	if err := json.Unmarshal([]byte(r.CC), &job.CC); err != nil {
		return nil, fmt.Errorf("could not unmarshal cc of job %s: %w", job.ID, err)
	}
	if err := json.Unmarshal([]byte(r.BCC), &job.BCC); err != nil {
		return nil, fmt.Errorf("could not unmarshal bcc of job %s: %w", job.ID, err)
	}
	return &job, nil
}

func packJSON(v any, empty string) (string, error) {
	if v == nil {
		return empty, nil
	}
	data, err := json.Marshal(v)
	return string(data), err
}

func (s *sqlite) AddJob(job *Job) (err error) {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	data, err := packJSON(job.TemplateData, "{}")
	if err != nil {
		return fmt.Errorf("could not marshal template data: %w", err)
	}
	cc, err := packJSON(job.CC, "[]")
	if err != nil {
		return fmt.Errorf("could not marshal cc: %w", err)
	}
	bcc, err := packJSON(job.BCC, "[]")
	if err != nil {
		return fmt.Errorf("could not marshal bcc: %w", err)
	}

	now := time.Now().In(time.UTC)
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = now
	}
	job.Status = StatusPending
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err = db.Exec(`
		INSERT INTO spool (id, message_id, app, template_id, template_data,
		                   recipient, recipient_name, cc, bcc,
		                   status, attempts, enqueued_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.MessageID, job.App, job.TemplateID, data,
		job.Recipient, job.RecipientName, cc, bcc,
		job.Status, job.Attempts, job.EnqueuedAt, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("could not insert into spool: %w", err)
	}
	return nil
}

func (s *sqlite) GetJob(id string) (*Job, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	var row jobRow
	err = db.Get(&row, `SELECT * FROM spool WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.unpack()
}

// NextPending returns up to limit pending jobs, oldest first. It does not
// claim them, ClaimJob does that one by one.
func (s *sqlite) NextPending(limit int) ([]Job, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	var rows []jobRow
	err = db.Select(&rows, `
		SELECT * FROM spool
		WHERE status = 'pending'
		ORDER BY enqueued_at ASC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(rows))
	for i := range rows {
		job, err := rows[i].unpack()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

// ClaimJob moves a pending job to processing. The status guard makes the
// claim exclusive, a job can never be handed to two consumers.
func (s *sqlite) ClaimJob(id string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	res, err := db.Exec(`
		UPDATE spool
		SET status = 'processing', updated_at = ?
		WHERE id = ? AND status = 'pending'`, time.Now().In(time.UTC), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return fmt.Errorf("could not claim job %s, %d rows affected: %w", id, affected, ErrNotFound)
	}
	return nil
}

// RequeueJob puts a processing job at the back of the queue and counts the
// attempt. Re-enqueued jobs lose their original position on purpose.
func (s *sqlite) RequeueJob(id string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	now := time.Now().In(time.UTC)
	res, err := db.Exec(`
		UPDATE spool
		SET status = 'pending', attempts = attempts + 1, enqueued_at = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'`, now, now, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return fmt.Errorf("could not requeue job %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *sqlite) MarkJobSent(id string, keyID int64) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	res, err := db.Exec(`
		UPDATE spool
		SET status = 'sent', key_id = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'`, keyID, time.Now().In(time.UTC), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return fmt.Errorf("could not mark job %s sent: %w", id, ErrNotFound)
	}
	return nil
}

func (s *sqlite) MarkJobFailed(id, reason string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	res, err := db.Exec(`
		UPDATE spool
		SET status = 'failed', reason = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'`, reason, time.Now().In(time.UTC), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return fmt.Errorf("could not mark job %s failed: %w", id, ErrNotFound)
	}
	return nil
}

// RequeueProcessing returns jobs stranded in processing to the queue. Run
// once at startup, it is the crash recovery for a dispatcher that died
// mid-send.
func (s *sqlite) RequeueProcessing() (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	res, err := db.Exec(`
		UPDATE spool
		SET status = 'pending', updated_at = ?
		WHERE status = 'processing'`, time.Now().In(time.UTC))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqlite) SpoolCounts() (courier.QueueStats, error) {
	var stats courier.QueueStats

	db, err := s.getDB()
	if err != nil {
		return stats, err
	}

	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	err = db.Select(&rows, `SELECT status, COUNT(*) AS count FROM spool GROUP BY status`)
	if err != nil {
		return stats, err
	}

	for _, r := range rows {
		stats.Total += r.Count
		switch r.Status {
		case StatusPending, StatusProcessing:
			// in-flight jobs still count as pending for reporting
			stats.Pending += r.Count
		case StatusSent:
			stats.Sent += r.Count
		case StatusFailed:
			stats.Failed += r.Count
		}
	}
	return stats, nil
}
