package model

import (
	"time"

	"github.com/google/uuid"
)

// EventEnvelope carries the fields shared by every ingested event: the
// patient the event concerns, the acting user, and the event time. The
// event time is "now" for the classifier's history window. OriginEventID
// makes redeliveries idempotent; producers that cannot supply one get a
// fresh id assigned at ingress. PatientID may be zero for events with no
// patient context, such as messages on direct channels; operations that
// need one enforce it themselves.
type EventEnvelope struct {
	OriginEventID uuid.UUID `json:"origin_event_id"`
	PatientID     int64     `json:"patient_id" validate:"omitempty,gt=0"`
	ActorID       int64     `json:"actor_id" validate:"required,gt=0"`
	At            time.Time `json:"at" validate:"required"`
}

// SymptomPayload holds the opaque answer tokens of one symptom survey
// submission. Tokens such as "1a" or "5c" are matched by equality only;
// they are never interpreted numerically.
type SymptomPayload struct {
	Level      string `json:"level,omitempty"`
	Frequency  string `json:"frequency,omitempty"`
	Length     string `json:"length,omitempty"`
	RecentPain string `json:"recentpain,omitempty"`
	RestPain   string `json:"restpain,omitempty"`
	Type       string `json:"type,omitempty"`
	Worse      string `json:"worse,omitempty"`
	Better     string `json:"better,omitempty"`
	Falls      string `json:"falls,omitempty"`
	Ulcers     string `json:"ulcers,omitempty"`
	Appearance string `json:"appearance,omitempty"`
}

// SymptomRecord is a stored symptom submission as seen by the classifier's
// history lookup.
type SymptomRecord struct {
	ID        int64          `db:"id"`
	PatientID int64          `db:"patient_id"`
	Category  string         `db:"medical_data_type"`
	Payload   SymptomPayload `db:"-"`
	At        time.Time      `db:"submitted_on"`
}

// SymptomEvent is a symptom survey submission.
type SymptomEvent struct {
	EventEnvelope
	Category      string         `json:"medical_data_type" validate:"required"`
	MedicalDataID int64          `json:"medical_data_id" validate:"required,gt=0"`
	ReporterID    int64          `json:"reporter_id" validate:"required,gt=0"`
	Payload       SymptomPayload `json:"payload"`
}

// MessageEvent is a chat message delivered on a patient-linked or direct
// channel. ReceiverID is the single addressed recipient.
type MessageEvent struct {
	EventEnvelope
	MessageID   string `json:"message_id" validate:"required"`
	ChannelName string `json:"channel_name" validate:"required"`
	SenderID    int64  `json:"sender_id" validate:"required,gt=0"`
	ReceiverID  int64  `json:"receiver_id" validate:"required,gt=0"`
	// PatientLinked is true when the channel is attached to a patient;
	// the rendered details then mention the patient.
	PatientLinked bool `json:"patient_linked"`
}

// CareTeamEvent records a provider or caregiver joining a patient's
// care team.
type CareTeamEvent struct {
	EventEnvelope
	MemberID int64 `json:"member_id" validate:"required,gt=0"`
}

// Medication change actions.
const (
	MedicationAdded        = "added"
	MedicationModified     = "modified"
	MedicationDeleted      = "deleted"
	MedicationDiscontinued = "discontinued"
)

// MedicationEvent records a medication row change for a patient.
type MedicationEvent struct {
	EventEnvelope
	MedicationRowID int64  `json:"medication_row_id" validate:"required,gt=0"`
	Action          string `json:"action" validate:"required,oneof=added modified deleted discontinued"`
	DrugName        string `json:"drug_name" validate:"required"`
	Quantity        string `json:"quantity"`
	Unit            string `json:"unit"`
	Sig             string `json:"sig"`
}

// DeviceReadingEvent records a remote-vital device reading ingest.
type DeviceReadingEvent struct {
	EventEnvelope
	RemoteVitalID int64 `json:"remote_vital_id" validate:"required,gt=0"`
}

// NotificationEvent is published on the broker after a fan-out commits;
// the portal push service consumes it.
type NotificationEvent struct {
	OriginEventID uuid.UUID `json:"origin_event_id"`
	Stream        Stream    `json:"stream"`
	SubjectID     int64     `json:"subject_id"`
	NotifierIDs   []int64   `json:"notifier_ids"`
	Level         int       `json:"level"`
	CreatedAt     time.Time `json:"created_at"`
}
