package model

// NetworkRole distinguishes provider and caregiver edges in a patient's
// care network.
type NetworkRole string

const (
	NetworkRoleProvider  NetworkRole = "provider"
	NetworkRoleCaregiver NetworkRole = "caregiver"
)

// NetworkMember is one resolved member of a patient's care network.
// AlertReceiver is the effective flag: caregiver edges are always masked
// to false at resolution time, so downstream components never need to
// re-check the role.
type NetworkMember struct {
	UserID        int64       `db:"user_id" json:"user_id"`
	Role          NetworkRole `db:"role" json:"role"`
	ExternalID    string      `db:"external_id" json:"external_id"`
	AlertReceiver bool        `db:"alert_receiver" json:"alert_receiver"`
	Degree        *string     `db:"degree" json:"degree,omitempty"`
}
