package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"haven/internal/partner"
	"haven/pkg/domain"
)

func testPartner(name string, jurisdictions []domain.Jurisdiction, priority int) partner.CrisisPartner {
	return partner.CrisisPartner{
		ID:            domain.NewPartnerID(),
		Name:          name,
		WebhookURL:    "https://" + name + ".example.com/hook",
		APIKeyHash:    "hash",
		Jurisdictions: jurisdictions,
		Capabilities:  []partner.Capability{partner.CapabilityCrisisIntervention},
		Priority:      priority,
		Active:        true,
	}
}

func TestSelect(t *testing.T) {
	t.Run("exact match beats country match regardless of priority", func(t *testing.T) {
		state := testPartner("state", []domain.Jurisdiction{"US-CA"}, 10)
		national := testPartner("national", []domain.Jurisdiction{"US"}, 0)

		got := Select("US-CA", []partner.CrisisPartner{national, state})
		require.NotNil(t, got)
		assert.Equal(t, state.ID, got.ID)
	})

	t.Run("country fallback when no exact coverage", func(t *testing.T) {
		national := testPartner("national", []domain.Jurisdiction{"US"}, 5)

		got := Select("US-TX", []partner.CrisisPartner{national})
		require.NotNil(t, got)
		assert.Equal(t, national.ID, got.ID)
	})

	t.Run("lower priority wins within equal specificity", func(t *testing.T) {
		first := testPartner("first", []domain.Jurisdiction{"US"}, 1)
		second := testPartner("second", []domain.Jurisdiction{"US"}, 5)

		got := Select("US", []partner.CrisisPartner{second, first})
		require.NotNil(t, got)
		assert.Equal(t, first.ID, got.ID)
	})

	t.Run("inactive partners are never selected", func(t *testing.T) {
		inactive := testPartner("inactive", []domain.Jurisdiction{"US-CA"}, 0)
		inactive.Active = false
		national := testPartner("national", []domain.Jurisdiction{"US"}, 9)

		got := Select("US-CA", []partner.CrisisPartner{inactive, national})
		require.NotNil(t, got)
		assert.Equal(t, national.ID, got.ID)
	})

	t.Run("no coverage yields nil", func(t *testing.T) {
		national := testPartner("national", []domain.Jurisdiction{"US"}, 0)

		assert.Nil(t, Select("FR", []partner.CrisisPartner{national}))
		assert.Nil(t, Select("FR", nil))
	})

	t.Run("deterministic on full ties", func(t *testing.T) {
		a := testPartner("a", []domain.Jurisdiction{"US"}, 3)
		b := testPartner("b", []domain.Jurisdiction{"US"}, 3)

		first := Select("US", []partner.CrisisPartner{a, b})
		second := Select("US", []partner.CrisisPartner{b, a})
		require.NotNil(t, first)
		require.NotNil(t, second)
		assert.Equal(t, first.ID, second.ID)
	})
}
