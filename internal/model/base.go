package model

import "time"

// UserType identifies the portal role of a platform user.
type UserType string

const (
	UserTypePhysician   UserType = "physician"
	UserTypeNurse       UserType = "nurse"
	UserTypeCaseManager UserType = "case_manager"
	UserTypeCaregiver   UserType = "caregiver"
	UserTypePatient     UserType = "patient"
	UserTypeCustomer    UserType = "customer"
)

// IsProvider reports whether the user type is a clinical provider role.
func (t UserType) IsProvider() bool {
	switch t {
	case UserTypePhysician, UserTypeNurse, UserTypeCaseManager:
		return true
	}
	return false
}

// User is the relational-store view of a platform user. Personally
// identifying fields live in the PHI store, keyed by ExternalID.
type User struct {
	ID         int64     `db:"id" json:"id"`
	ExternalID string    `db:"external_id" json:"external_id"`
	UserType   UserType  `db:"user_type" json:"user_type"`
	Degree     *string   `db:"degree" json:"degree,omitempty"`
	Specialty  *string   `db:"specialty" json:"specialty,omitempty"`
	Status     string    `db:"status" json:"status"`
	CreatedAt  time.Time `db:"created_on" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_on" json:"updated_at"`
}

// Organization is the tenant boundary; a notification recipient and the
// patient it concerns must share at least one organization at write time.
type Organization struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_on" json:"created_at"`
	UpdatedAt time.Time `db:"updated_on" json:"updated_at"`
}
