package validate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestEmail(t *testing.T) {
	e, ok := Email("  Alice@Example.com ")
	assert.True(t, ok)
	assert.Equal(t, "alice@example.com", e)

	_, ok = Email("not-an-email")
	assert.False(t, ok)
	_, ok = Email("")
	assert.False(t, ok)
}

func TestQ(t *testing.T) {
	q, ok := Q("  ")
	assert.True(t, ok)
	assert.Equal(t, "", q)

	q, ok = Q("cámara web")
	assert.True(t, ok)
	assert.Equal(t, "cámara web", q)

	_, ok = Q("<script>")
	assert.False(t, ok)
}

func TestQtyAndStock(t *testing.T) {
	assert.True(t, Qty(1))
	assert.True(t, Qty(MaxCartQty))
	assert.False(t, Qty(0))
	assert.False(t, Qty(MaxCartQty+1))

	assert.True(t, Stock(0))
	assert.False(t, Stock(-1))
}

func TestPrice(t *testing.T) {
	p, ok := Price("19.99")
	assert.True(t, ok)
	assert.True(t, p.Equal(decimal.RequireFromString("19.99")))

	_, ok = Price("19.999")
	assert.False(t, ok)
	_, ok = Price("-1")
	assert.False(t, ok)
	_, ok = Price("abc")
	assert.False(t, ok)
	_, ok = Price("20.500")
	assert.True(t, ok)
}

func TestPassword(t *testing.T) {
	assert.True(t, Password("Passw0rd!"))
	assert.False(t, Password("password"))
	assert.False(t, Password("Sh0rt!"))
}

func TestRoleAndID(t *testing.T) {
	r, ok := Role(" ADMIN ")
	assert.True(t, ok)
	assert.Equal(t, "admin", r)
	_, ok = Role("owner")
	assert.False(t, ok)

	_, ok = ID("p-keyboard")
	assert.True(t, ok)
	_, ok = ID("../etc")
	assert.False(t, ok)
}

func TestDescriptionAndInt(t *testing.T) {
	d, ok := Description("   ")
	assert.True(t, ok)
	assert.Nil(t, d)

	assert.Equal(t, 3, Int("3", 1))
	assert.Equal(t, 1, Int("x", 1))
}
