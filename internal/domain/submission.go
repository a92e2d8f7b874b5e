package domain

import (
	"encoding/json"
	"time"
)

// Mode selects which wire body a data capture produces.
type Mode string

const (
	ModeEnrolment    Mode = "enrolment"
	ModeVerification Mode = "verification"
)

// KindAlert is the submission kind used for alert messages. Data submissions
// use the session mode as their kind.
const KindAlert = "alert"

// AlertLevel classifies alert messages raised by sensors or the host.
type AlertLevel string

const (
	LevelInfo    AlertLevel = "info"
	LevelWarning AlertLevel = "warning"
	LevelAlert   AlertLevel = "alert"
	LevelError   AlertLevel = "error"
)

// DataMetadata describes a captured payload.
type DataMetadata struct {
	Filename  string         `json:"filename"`
	Mimetype  string         `json:"mimetype"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// EnrolmentBody is the wire body for enrolment-mode captures.
type EnrolmentBody struct {
	LearnerID   string       `json:"learner_id"`
	Data        string       `json:"data"`
	Instruments []int        `json:"instruments"`
	Metadata    DataMetadata `json:"metadata"`
}

// VerificationBody is the wire body for verification-mode captures. It carries
// the course/activity/session context the validation backend scopes results by.
type VerificationBody struct {
	LearnerID   string       `json:"learner_id"`
	CourseID    int          `json:"course_id"`
	ActivityID  int          `json:"activity_id"`
	SessionID   int          `json:"session_id,omitempty"`
	Data        string       `json:"data"`
	Instruments []int        `json:"instruments"`
	Metadata    DataMetadata `json:"metadata"`
}

// AlertBody is the wire body for alert submissions.
type AlertBody struct {
	Level       AlertLevel `json:"level"`
	LearnerID   string     `json:"learner_id"`
	CourseID    int        `json:"course_id"`
	ActivityID  int        `json:"activity_id"`
	MessageCode string     `json:"message_code"`
	SessionID   int        `json:"session_id,omitempty"`
	Data        any        `json:"data"`
	Instruments []int      `json:"instruments"`
	RaisedAt    string     `json:"raised_at"`
}

// Submission is one queued outbound item. The body is kept opaque so entries
// round-trip through the durable store byte-for-byte.
type Submission struct {
	Kind          string          `json:"type"`
	Seq           uint64          `json:"seq"`
	InstitutionID int             `json:"institution_id"`
	LearnerID     string          `json:"learner_id"`
	Body          json.RawMessage `json:"body"`
}

// Counters is the persisted state of one logical queue. Pending holds
// sequence numbers awaiting first delivery; Status holds server-assigned
// tracking paths of delivered items awaiting a validation verdict. Sent,
// Correct and Failed only ever grow.
type Counters struct {
	Seq     uint64   `json:"seq"`
	Pending []uint64 `json:"pending"`
	Sent    uint64   `json:"sent"`
	Correct uint64   `json:"correct"`
	Failed  uint64   `json:"failed"`
	Status  []string `json:"status"`
}

// Validation verdicts returned by the status endpoint. Anything other than
// PENDING is terminal; anything terminal other than VALID counts as failed.
const (
	StatusPending = "PENDING"
	StatusValid   = "VALID"
)

// StatusResult is one entry of the status endpoint response.
type StatusResult struct {
	Sample string `json:"sample"`
	Status string `json:"status"`
}
