package composer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/carelink-api/internal/model"
	"github.com/carelink/carelink-api/pkg/crypto"
)

func newComposer(t *testing.T) *Composer {
	t.Helper()
	enc, err := crypto.NewCBCEncryptor(crypto.DeriveKey("test-secret"))
	require.NoError(t, err)
	return New(enc)
}

func TestSymptomTemplates(t *testing.T) {
	c := newComposer(t)

	assert.Equal(t,
		"FirstP LastP has submitted new Fever symptom",
		c.Symptom("FirstP LastP", model.CategoryFever, "FirstP LastP", "", true))

	assert.Equal(t,
		"FirstP LastP has new Chest Pain symptom submitted by Nancy Nurse,RN",
		c.Symptom("FirstP LastP", model.CategoryChestPain, "Nancy Nurse", "RN", false))

	assert.Equal(t,
		"FirstP LastP has new Shortness Of Breath symptom submitted by Nancy Nurse",
		c.Symptom("FirstP LastP", model.CategoryShortnessOfBreath, "Nancy Nurse", "", false))
}

func TestMessageTemplates(t *testing.T) {
	c := newComposer(t)

	assert.Equal(t, "Dr. Who MD has sent you a message about Amy Pond",
		c.Message("Dr. Who", "MD", "Amy Pond"))
	assert.Equal(t, "Dr. Who has sent you a message",
		c.Message("Dr. Who", "", ""))
}

func TestCareTeamTemplates(t *testing.T) {
	c := newComposer(t)

	assert.Equal(t, "Greg House,MD Nephrology has been added to Amy Pond's care team",
		c.CareTeam("Greg House", "MD", "Nephrology", "Amy Pond"))
	assert.Equal(t, "Carl Carer has been added to Amy Pond's care team",
		c.CareTeam("Carl Carer", "", "", "Amy Pond"))
}

func TestMedicationTemplate(t *testing.T) {
	c := newComposer(t)

	assert.Equal(t,
		"Medication has been added for Amy Pond by Greg House,MD : Lisinopril(10mg, once daily)",
		c.Medication(model.MedicationAdded, "Amy Pond", "Greg House", "MD", "Lisinopril", "10", "mg", "once daily"))
}

func TestRemoteVitalTemplate(t *testing.T) {
	c := newComposer(t)

	assert.Equal(t, "A Remote Vital device reading has been reported for Amy Pond",
		c.RemoteVital("Amy Pond"))
}

func TestSealOpenRoundTrip(t *testing.T) {
	c := newComposer(t)

	details := c.Symptom("Amy Pond", model.CategoryFalls, "", "", true)
	sealed, err := c.Seal(details)
	require.NoError(t, err)
	assert.NotEqual(t, []byte(details), sealed)

	opened, err := c.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, details, opened)
	assert.NotEmpty(t, opened)
}

func TestSealRejectsEmpty(t *testing.T) {
	c := newComposer(t)
	_, err := c.Seal("")
	assert.Error(t, err)
}
