package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	reg := Default()

	t.Run("every attribute is dot-namespaced under its category", func(t *testing.T) {
		for _, cat := range reg.Categories() {
			for _, attr := range cat.Attributes {
				assert.True(t, strings.HasPrefix(attr.ID, cat.Key+"."),
					"attribute %q must live under category %q", attr.ID, cat.Key)
				assert.Equal(t, cat.Key, attr.Category)
				assert.NotEmpty(t, attr.Name)
				assert.NotEmpty(t, attr.Description)
			}
		}
	})

	t.Run("size matches the sum of category attributes", func(t *testing.T) {
		total := 0
		for _, cat := range reg.Categories() {
			total += len(cat.Attributes)
		}
		assert.Equal(t, total, reg.Size())
	})

	t.Run("ids are unique", func(t *testing.T) {
		seen := map[string]bool{}
		for _, cat := range reg.Categories() {
			for _, attr := range cat.Attributes {
				require.False(t, seen[attr.ID], "duplicate attribute id %q", attr.ID)
				seen[attr.ID] = true
			}
		}
	})

	t.Run("lookup resolves known and rejects unknown", func(t *testing.T) {
		attr, ok := reg.Lookup("transactions.amount")
		require.True(t, ok)
		assert.Equal(t, "Transaction Amount", attr.Name)

		_, ok = reg.Lookup("transactions.nonexistent")
		assert.False(t, ok)
	})
}

func TestStaticCatalog(t *testing.T) {
	reg := Static([]Category{
		{Key: "user", Name: "Personal Information", Attributes: []Attribute{
			{ID: "user.income", Category: "user", Name: "Income"},
			{ID: "user.email", Category: "user", Name: "Email"},
		}},
	})

	assert.Equal(t, 2, reg.Size())
	_, ok := reg.Lookup("user.income")
	assert.True(t, ok)
	_, ok = reg.Lookup("accounts.balance")
	assert.False(t, ok)
}
