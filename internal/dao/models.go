package dao

import (
	"database/sql"
	"time"

	"github.com/courierd/courier"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSent       = "sent"
	StatusFailed     = "failed"
)

// Failure reasons recorded on a job. Transport failures are terminal,
// quota-unavailable and internal-error are set once the re-enqueue bound
// is exceeded, depending on what kept the job from dispatching.
const (
	ReasonTransportFailure = "transport-failure"
	ReasonQuotaUnavailable = "quota-unavailable"
	ReasonTemplateMissing  = "template-missing"
	ReasonInternalError    = "internal-error"
)

type Outcome string

const (
	OutcomeSent   Outcome = "sent"
	OutcomeFailed Outcome = "failed"
)

// Job is one outbound message instance in the spool.
type Job struct {
	ID            string              `db:"id"`
	MessageID     string              `db:"message_id"`
	App           string              `db:"app"`
	TemplateID    int64               `db:"template_id"`
	TemplateData  map[string]any      `db:"-"`
	Recipient     string              `db:"recipient"`
	RecipientName string              `db:"recipient_name"`
	CC            []courier.Recipient `db:"-"`
	BCC           []courier.Recipient `db:"-"`
	Status        string              `db:"status"`
	Reason        string              `db:"reason"`
	Attempts      int                 `db:"attempts"`
	KeyID         sql.NullInt64       `db:"key_id"`
	EnqueuedAt    time.Time           `db:"enqueued_at"`
	CreatedAt     time.Time           `db:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at"`
}

// StatRecord is the aggregate counter for one (application, date) pair.
type StatRecord struct {
	App    string `db:"app"`
	Date   string `db:"date"`
	Sent   int    `db:"sent"`
	Failed int    `db:"failed"`
}
