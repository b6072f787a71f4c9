package courier

import (
	"time"
)

// DateFormat is the calendar-date format used for quota resets and
// statistics keys. All dates are evaluated in UTC.
const DateFormat = "2006-01-02"

func Today() string {
	return time.Now().In(time.UTC).Format(DateFormat)
}

// Provider classifies which mail service a credential belongs to. It is
// informational grouping only, the engine never branches on it. The SMTP
// transport uses it to look up the submission endpoint.
type Provider string

const (
	ProviderQQ      Provider = "QQ"
	Provider163     Provider = "163"
	ProviderAli     Provider = "ali"
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
	ProviderOther   Provider = "other"
)

var Providers = []Provider{ProviderQQ, Provider163, ProviderAli, ProviderGmail, ProviderOutlook, ProviderOther}

func (p Provider) Valid() bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

// Credential is one sending identity owned by an application. SentCount is
// only ever mutated by the dispatcher (claim/release) and the daily quota
// reset, never by the CRUD surface.
type Credential struct {
	ID            int64     `json:"id" db:"id"`
	User          string    `json:"user" db:"user" validate:"required,email"`
	Pass          string    `json:"pass" db:"pass" validate:"required"`
	App           string    `json:"app" db:"app" validate:"required"`
	Company       Provider  `json:"emailCompany" db:"email_company" validate:"required"`
	LimitCount    int       `json:"limitCount" db:"limit_count" validate:"required,gt=0"`
	SentCount     int       `json:"sentCount" db:"sent_count"`
	LastResetDate string    `json:"lastResetDate" db:"last_reset_date"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// CredentialPatch carries a partial update. Nil fields are left untouched.
type CredentialPatch struct {
	User       *string   `json:"user" validate:"omitempty,email"`
	Pass       *string   `json:"pass"`
	App        *string   `json:"app"`
	Company    *Provider `json:"emailCompany"`
	LimitCount *int      `json:"limitCount" validate:"omitempty,gt=0"`
}

type ContentType string

const (
	ContentHTML ContentType = "html"
	ContentText ContentType = "text"
)

// Template is reusable message content. Subject and Content may contain
// {{placeholder}} variables substituted at dispatch time.
type Template struct {
	ID        int64       `json:"id" db:"id"`
	Name      string      `json:"name" db:"name" validate:"required"`
	Subject   string      `json:"subject" db:"subject" validate:"required"`
	Content   string      `json:"content" db:"content" validate:"required"`
	Type      ContentType `json:"type" db:"type" validate:"required,oneof=html text"`
	CreatedAt time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time   `json:"updatedAt" db:"updated_at"`
}

type TemplatePatch struct {
	Name    *string      `json:"name"`
	Subject *string      `json:"subject"`
	Content *string      `json:"content"`
	Type    *ContentType `json:"type" validate:"omitempty,oneof=html text"`
}

type Recipient struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name,omitempty"`
}

// SendRequest is the body of POST /api/email/send. The call is
// fire-and-forget, a 2xx only means the job has been enqueued.
type SendRequest struct {
	App           string         `json:"app" validate:"required"`
	TemplateID    int64          `json:"templateId" validate:"required,gt=0"`
	TemplateData  map[string]any `json:"templateData"`
	Recipient     string         `json:"recipient" validate:"required,email"`
	RecipientName string         `json:"recipientName,omitempty"`
	CC            []Recipient    `json:"cc,omitempty" validate:"omitempty,dive"`
	BCC           []Recipient    `json:"bcc,omitempty" validate:"omitempty,dive"`
}

// Receipt is returned by /api/email/send.
type Receipt struct {
	MessageID string `json:"messageId"`
}

// QueueStats is a point-in-time snapshot over retained dispatch jobs.
type QueueStats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

type DayStat struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// AppStats maps calendar date to the day's outcome counts. Days with no
// record are absent, there is no zero-fill.
type AppStats map[string]DayStat

type AppKeyStats struct {
	Count           int `json:"count"`
	TotalDailyLimit int `json:"totalDailyLimit"`
}

type KeyStatistics struct {
	Total int                    `json:"total"`
	ByApp map[string]AppKeyStats `json:"byApp"`
}

type TemplateStatistics struct {
	Total int `json:"total"`
}

// SystemStatistics is the GET /api/statistics response.
type SystemStatistics struct {
	EmailQueue QueueStats         `json:"emailQueue"`
	EmailKeys  KeyStatistics      `json:"emailKeys"`
	Templates  TemplateStatistics `json:"templates"`
}

type OutcomeSeries struct {
	Total  int            `json:"total"`
	ByDate map[string]int `json:"byDate"`
}

// AppStatistics is the GET /api/statistics/app response.
type AppStatistics struct {
	EmailsSent   OutcomeSeries `json:"emailsSent"`
	EmailsFailed OutcomeSeries `json:"emailsFailed"`
}
