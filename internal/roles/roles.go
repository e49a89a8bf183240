// Package roles maps staff roles to the capabilities they hold. A capability
// is "<resource>.<action>" where view also covers create, following the
// view/edit/delete triples staff are granted per resource.
package roles

import "sort"

const (
	MD         = "md"
	Manager    = "manager"
	Cashier    = "cashier"
	Accountant = "accountant"
)

type Capability string

const (
	ProductsView   Capability = "products.view"
	ProductsEdit   Capability = "products.edit"
	ProductsDelete Capability = "products.delete"

	SalesView Capability = "sales.view"
	SalesEdit Capability = "sales.edit"

	PaymentsView Capability = "payments.view"
	PaymentsEdit Capability = "payments.edit"

	CustomersView Capability = "customers.view"
	CustomersEdit Capability = "customers.edit"

	ReturnsView     Capability = "returns.view"
	ReturnsEdit     Capability = "returns.edit"
	ReturnsApprove  Capability = "returns.approve"
	ReturnsComplete Capability = "returns.complete"

	StoreCreditsView   Capability = "store_credits.view"
	StoreCreditsRedeem Capability = "store_credits.redeem"

	AuditView   Capability = "audit.view"
	UsersManage Capability = "users.manage"
	SyncRun     Capability = "sync.run"
)

var table = map[string][]Capability{
	MD: {
		ProductsView, ProductsEdit, ProductsDelete,
		SalesView, SalesEdit,
		PaymentsView, PaymentsEdit,
		CustomersView, CustomersEdit,
		ReturnsView, ReturnsEdit, ReturnsApprove, ReturnsComplete,
		StoreCreditsView, StoreCreditsRedeem,
		AuditView, UsersManage, SyncRun,
	},
	Cashier: {
		ProductsView,
		SalesView, SalesEdit,
		PaymentsView, PaymentsEdit,
		CustomersView, CustomersEdit,
		ReturnsView, ReturnsEdit,
		StoreCreditsView, StoreCreditsRedeem,
	},
	Accountant: {
		ProductsView,
		SalesView,
		PaymentsView, PaymentsEdit,
		CustomersView,
		ReturnsView,
		StoreCreditsView,
		AuditView,
	},
}

// aliases resolve role names that share another role's grants.
var aliases = map[string]string{
	Manager:             MD,
	"managing director": MD,
}

func resolve(role string) string {
	if target, ok := aliases[role]; ok {
		return target
	}
	return role
}

func Known(role string) bool {
	_, ok := table[resolve(role)]
	return ok
}

func Allows(role string, capability Capability) bool {
	for _, c := range table[resolve(role)] {
		if c == capability {
			return true
		}
	}
	return false
}

// Capabilities lists a role's grants in sorted order.
func Capabilities(role string) []Capability {
	grants := append([]Capability(nil), table[resolve(role)]...)
	sort.Slice(grants, func(i, j int) bool { return grants[i] < grants[j] })
	return grants
}
