package model

import (
	"time"

	"github.com/google/uuid"
)

// Stream is one of the five notification kinds.
type Stream string

const (
	StreamSymptoms     Stream = "symptoms"
	StreamMessages     Stream = "messages"
	StreamRemoteVitals Stream = "remote_vitals"
	StreamCareTeam     Stream = "care_team"
	StreamMedications  Stream = "medications"
)

// Streams lists every stream in response-document order.
var Streams = []Stream{
	StreamSymptoms,
	StreamMessages,
	StreamRemoteVitals,
	StreamCareTeam,
	StreamMedications,
}

// ParseStream maps a wire token to a Stream.
func ParseStream(s string) (Stream, bool) {
	switch Stream(s) {
	case StreamSymptoms, StreamMessages, StreamRemoteVitals, StreamCareTeam, StreamMedications:
		return Stream(s), true
	}
	return "", false
}

// Severity levels assigned at write time; immutable thereafter.
const (
	LevelNormal = 1
	LevelAlert  = 2
)

// Notification status values. Unread is the default on insert.
const (
	StatusRead   = 0
	StatusUnread = 1
)

// Notification is one per-recipient record produced by event fan-out.
// Details are stored encrypted; the plaintext never touches the database.
type Notification struct {
	ID            int64     `db:"id" json:"id"`
	Stream        Stream    `db:"-" json:"-"`
	OriginEventID uuid.UUID `db:"origin_event_id" json:"origin_event_id"`
	Level      int    `db:"level" json:"level"`
	Status     int    `db:"notification_status" json:"notification_status"`
	Details    []byte `db:"notification_details" json:"-"`
	NotifierID int64  `db:"notifier_id" json:"notifier_id"`
	SubjectID  int64  `db:"subject_id" json:"subject_id"`

	// Per-stream discriminators; only the fields for the record's own
	// stream are populated.
	MedicalDataType *string `db:"medical_data_type" json:"medical_data_type,omitempty"`
	MedicalDataID   *int64  `db:"medical_data_id" json:"medical_data_id,omitempty"`
	RemoteVitalID   *int64  `db:"remote_vital_id" json:"remote_vital_id,omitempty"`
	CareTeamUserID  *int64  `db:"ct_member_id" json:"ct_member_id,omitempty"`
	MedicationRowID *int64  `db:"medication_row_id" json:"medication_row_id,omitempty"`
	MessageID       *string `db:"message_id" json:"message_id,omitempty"`
	ChannelName     *string `db:"channel_name" json:"channel_name,omitempty"`
	SenderID        *int64  `db:"sender_id" json:"sender_id,omitempty"`
	ReceiverID      *int64  `db:"receiver_id" json:"receiver_id,omitempty"`

	CreatedAt time.Time `db:"created_on" json:"created_on"`
	CreatedBy int64     `db:"created_by" json:"created_by"`
	UpdatedAt time.Time `db:"updated_on" json:"updated_on"`
	UpdatedBy int64     `db:"updated_by" json:"updated_by"`
}

// NotificationView is the denormalized listing row returned by the query
// API, with PHI display fields joined in and details decrypted.
type NotificationView struct {
	Notification
	DetailsText      string `json:"notification_details"`
	SubjectFirstName string `json:"subject_first_name"`
	SubjectLastName  string `json:"subject_last_name"`
	SubjectExternal  string `json:"subject_external_id"`
}

// GroupedNotifications is the five-stream response document of the portal
// listing endpoint.
type GroupedNotifications struct {
	Symptoms     []*NotificationView `json:"symptoms"`
	Messages     []*NotificationView `json:"messages"`
	RemoteVitals []*NotificationView `json:"remote_vitals"`
	CareTeam     []*NotificationView `json:"care_team"`
	Medications  []*NotificationView `json:"medications"`
	UnreadCount  int                 `json:"unread_count"`
	TotalCount   int                 `json:"total_count"`
}

// ListFilter narrows a recipient's notification listing. From/To is a
// half-open range on created_on. Status nil means all.
type ListFilter struct {
	Streams []Stream
	Status  *int
	From    *time.Time
	To      *time.Time
}

// SeverityCell is one (patient, category) entry of the dashboard snapshot.
type SeverityCell struct {
	SubjectID       int64  `db:"subject_id" json:"patient_id"`
	MedicalDataType string `db:"medical_data_type" json:"medical_data_type"`
	MaxLevel        int    `db:"max_level" json:"notification_level"`
}

// CategoryLevel pairs one canonical category with its max unread level.
type CategoryLevel struct {
	Category string `json:"medical_data_type"`
	Level    int    `json:"notification_level"`
}

// SeveritySnapshot aligns a patient's unread symptom severities to the
// canonical category order.
type SeveritySnapshot struct {
	SubjectID int64           `json:"patient_id"`
	Levels    []CategoryLevel `json:"levels"`
}
