package assets

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodePayload(t *testing.T, body string) Payload {
	t.Helper()
	var p Payload
	require.NoError(t, json.Unmarshal([]byte(body), &p))
	return p
}

func TestPayloadApply(t *testing.T) {
	t.Run("full payload", func(t *testing.T) {
		p := decodePayload(t, `{
			"name": "asset1",
			"department": "UIS",
			"purpose": "research",
			"owner": "amc203",
			"private": true,
			"personal_data": false,
			"risk_type": ["operational", "reputational", "operational"],
			"storage_location": "Server room",
			"storage_format": ["digital"],
			"digital_storage_security": ["acl"],
			"id": "ignored",
			"is_complete": false,
			"unknown": 1
		}`)

		a := &Asset{}
		require.NoError(t, p.Apply(a))
		assert.Equal(t, "asset1", *a.Name)
		assert.True(t, a.Private)
		require.NotNil(t, a.PersonalData)
		assert.False(t, *a.PersonalData)
		assert.Equal(t, []string{"operational", "reputational"}, a.RiskType)
		assert.Empty(t, a.DataSubject)
		assert.Nil(t, a.Retention)
		assert.True(t, IsComplete(a))
	})

	t.Run("missing fields are kept", func(t *testing.T) {
		a := completeAsset()
		require.NoError(t, decodePayload(t, `{"name": "renamed"}`).Apply(a))
		assert.Equal(t, "renamed", *a.Name)
		assert.Equal(t, "UIS", *a.Department)
		assert.True(t, a.Private)
		require.NotNil(t, a.PersonalData)
		assert.Equal(t, []string{StorageDigital, StoragePaper}, a.StorageFormat)
	})

	t.Run("explicit null clears a field", func(t *testing.T) {
		a := completeAsset()
		require.NoError(t, decodePayload(t, `{"name": "renamed", "owner": null}`).Apply(a))
		assert.Equal(t, "renamed", *a.Name)
		assert.Nil(t, a.Owner)
		assert.Equal(t, "UIS", *a.Department)
		assert.True(t, a.Private)
	})

	t.Run("null set is empty", func(t *testing.T) {
		a := completeAsset()
		require.NoError(t, decodePayload(t, `{"risk_type": null}`).Apply(a))
		assert.Equal(t, []string{}, a.RiskType)
	})

	t.Run("empty string is kept", func(t *testing.T) {
		a := &Asset{}
		require.NoError(t, decodePayload(t, `{"recipients_outside_eea": ""}`).Apply(a))
		require.NotNil(t, a.RecipientsOutsideEEA)
		assert.Equal(t, "", *a.RecipientsOutsideEEA)
	})

	t.Run("invalid payload leaves asset untouched", func(t *testing.T) {
		a := completeAsset()
		err := decodePayload(t, `{
			"name": "renamed",
			"purpose": "fun",
			"private": null,
			"data_subject": ["aliens"],
			"risk_type": "financial",
			"owner": "`+strings.Repeat("x", 51)+`",
			"personal_data": "yes"
		}`).Apply(a)

		var fe FieldErrors
		require.ErrorAs(t, err, &fe)
		assert.Len(t, fe, 6)
		assert.Contains(t, fe, "purpose")
		assert.Contains(t, fe, "private")
		assert.Contains(t, fe, "data_subject")
		assert.Contains(t, fe, "risk_type")
		assert.Contains(t, fe, "owner")
		assert.Contains(t, fe, "personal_data")
		assert.Equal(t, "asset1", *a.Name)
	})
}

func TestPayloadString(t *testing.T) {
	p := decodePayload(t, `{"department": "UIS", "name": null, "private": true}`)

	v, ok := p.String("department")
	assert.True(t, ok)
	assert.Equal(t, "UIS", v)

	_, ok = p.String("name")
	assert.False(t, ok)
	assert.True(t, p.Has("name"))

	_, ok = p.String("private")
	assert.False(t, ok)

	_, ok = p.String("missing")
	assert.False(t, ok)
	assert.False(t, p.Has("missing"))
}

func TestFieldErrors(t *testing.T) {
	fe := FieldErrors{}
	fe.Add("name", "too long")
	fe.Add("name", "bad")
	fe.Add("department", "required")
	assert.Equal(t, "invalid fields: department (required) name (too long; bad)", fe.Error())
}
