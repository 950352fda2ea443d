package composer

import (
	"fmt"

	"github.com/carelink/carelink-api/internal/model"
	"github.com/carelink/carelink-api/pkg/crypto"
)

// Composer renders the fixed per-stream notification_details templates
// and encrypts them at rest. Rendering is deterministic and never
// localized.
type Composer struct {
	enc crypto.Encryptor
}

func New(enc crypto.Encryptor) *Composer {
	return &Composer{enc: enc}
}

// Symptom renders the symptom stream template. Self-submitted surveys
// use the shorter form.
func (c *Composer) Symptom(patientName, category, reporterName, reporterDegree string, selfReported bool) string {
	label := model.CategoryLabel(category)
	if selfReported {
		return fmt.Sprintf("%s has submitted new %s symptom", patientName, label)
	}
	reporter := reporterName
	if reporterDegree != "" {
		reporter += "," + reporterDegree
	}
	return fmt.Sprintf("%s has new %s symptom submitted by %s", patientName, label, reporter)
}

// Message renders the message stream template; patient-linked channels
// mention the patient.
func (c *Composer) Message(senderName, senderDegree, patientName string) string {
	sender := senderName
	if senderDegree != "" {
		sender += " " + senderDegree
	}
	out := fmt.Sprintf("%s has sent you a message", sender)
	if patientName != "" {
		out += " about " + patientName
	}
	return out
}

// CareTeam renders the care-team stream template.
func (c *Composer) CareTeam(memberName, memberDegree, memberSpecialty, patientName string) string {
	member := memberName
	if memberDegree != "" {
		member += "," + memberDegree
		if memberSpecialty != "" {
			member += " " + memberSpecialty
		}
	}
	return fmt.Sprintf("%s has been added to %s's care team", member, patientName)
}

// Medication renders the medication stream template.
func (c *Composer) Medication(action, patientName, actorName, actorDegree, drug, qty, unit, sig string) string {
	actor := actorName
	if actorDegree != "" {
		actor += "," + actorDegree
	}
	return fmt.Sprintf("Medication has been %s for %s by %s : %s(%s%s, %s)",
		action, patientName, actor, drug, qty, unit, sig)
}

// RemoteVital renders the remote-vital stream template.
func (c *Composer) RemoteVital(patientName string) string {
	return fmt.Sprintf("A Remote Vital device reading has been reported for %s", patientName)
}

// Seal encrypts rendered details for storage.
func (c *Composer) Seal(details string) ([]byte, error) {
	if details == "" {
		return nil, fmt.Errorf("refusing to seal empty details")
	}
	ciphertext, err := c.enc.Encrypt([]byte(details))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt details: %w", err)
	}
	return ciphertext, nil
}

// Open decrypts stored details for a listing view.
func (c *Composer) Open(ciphertext []byte) (string, error) {
	plaintext, err := c.enc.Decrypt(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt details: %w", err)
	}
	return string(plaintext), nil
}
