package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManagerSharesMDGrants(t *testing.T) {
	assert.Equal(t, Capabilities(MD), Capabilities(Manager))
	assert.True(t, Allows(Manager, ReturnsComplete))
	assert.True(t, Known(Manager))
}

func TestCashierCannotApproveOrCompleteReturns(t *testing.T) {
	assert.True(t, Allows(Cashier, ReturnsView))
	assert.False(t, Allows(Cashier, ReturnsApprove))
	assert.False(t, Allows(Cashier, ReturnsComplete))
	assert.False(t, Allows(Cashier, SyncRun))
}

func TestAccountantIsReadMostly(t *testing.T) {
	assert.True(t, Allows(Accountant, AuditView))
	assert.True(t, Allows(Accountant, PaymentsEdit))
	assert.False(t, Allows(Accountant, ProductsEdit))
	assert.False(t, Allows(Accountant, StoreCreditsRedeem))
}

func TestUnknownRoleHasNothing(t *testing.T) {
	assert.False(t, Known("intern"))
	assert.False(t, Allows("intern", ProductsView))
	assert.Empty(t, Capabilities("intern"))
}
