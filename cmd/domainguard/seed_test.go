package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/domainguard/internal/domain"
)

func TestReadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
targets:
  - name: example.com
    expires: 2027-01-15
    owner: {name: Ops, email: ops@example.com, phone: "+15550100"}
    alerts:
      - {type: domain_expiry, days_before_expiry: 30, email: true}
      - {type: ssl_expiry, days_before_expiry: 14, email: true, sms: true}
`), 0o600))

	targets, err := readSeed(path)
	require.NoError(t, err)
	require.Len(t, targets, 1)

	tgt, rules, err := targets[0].toDomain()
	require.NoError(t, err)
	assert.Equal(t, "example.com", tgt.Name)
	assert.Equal(t, 2027, tgt.ExpiresAt.Year())
	assert.Equal(t, "+15550100", tgt.Owner.Phone)
	require.Len(t, rules, 2)
	assert.Equal(t, domain.AlertSSLExpiry, rules[1].Type)
	assert.Equal(t, []domain.Channel{domain.ChannelEmail, domain.ChannelSMS}, rules[1].Channels())
}

func TestSeedTarget_Invalid(t *testing.T) {
	_, _, err := seedTarget{Name: "example.com", Expires: "soon", Owner: seedOwner{Email: "a@b.c"}}.toDomain()
	assert.Error(t, err)

	_, _, err = seedTarget{Name: "example.com", Expires: "2027-01-01"}.toDomain()
	assert.Error(t, err)
}

func TestSeedTarget_InvalidRuleRejectedBeforeInsert(t *testing.T) {
	st := seedTarget{
		Name: "example.com", Expires: "2027-01-01", Owner: seedOwner{Email: "ops@example.com"},
		Alerts: []seedRule{
			{Type: "domain_expiry", Days: 30, Email: true},
			{Type: "ssl_expiry", Days: 999, Email: true},
		},
	}
	_, _, err := st.toDomain()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "example.com")

	st.Alerts = []seedRule{{Type: "dns_expiry", Days: 10}}
	_, _, err = st.toDomain()
	assert.Error(t, err)

	st.Alerts = []seedRule{{Type: "ssl_expiry", Email: true}}
	_, _, err = st.toDomain()
	assert.Error(t, err, "expiry rules need an explicit threshold")
}

func TestSeedTarget_ThresholdlessRulesDefaultToOneDay(t *testing.T) {
	st := seedTarget{
		Name: "example.com", Expires: "2027-01-01", Owner: seedOwner{Email: "ops@example.com"},
		Alerts: []seedRule{
			{Type: "domain_downtime", Email: true},
			{Type: "ssl_invalid", SMS: true},
		},
	}
	_, rules, err := st.toDomain()
	require.NoError(t, err)
	require.Len(t, rules, 2)
	for _, r := range rules {
		assert.Equal(t, 1, r.DaysBeforeExpiry, r.Type)
		r.TargetID = "bound"
		assert.NoError(t, r.Validate())
	}
}
