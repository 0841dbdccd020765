package routing

import "fmt"

// Class partitions entity categories between the shared database and the
// per-tenant databases.
type Class int

const (
	// ClassShared entities live in the shared database for all tenants.
	ClassShared Class = iota
	// ClassTenantScoped entities live in the active tenant's database.
	ClassTenantScoped
)

func (c Class) String() string {
	switch c {
	case ClassShared:
		return "shared"
	case ClassTenantScoped:
		return "tenant_scoped"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Category names a persisted entity family as referenced by domain code.
type Category string

const (
	CategorySessions        Category = "sessions"
	CategoryAuthUsers       Category = "auth_users"
	CategoryPlatformCache   Category = "platform_cache"
	CategoryBillingAccounts Category = "billing_accounts"

	CategoryCustomers Category = "customers"
	CategoryOrders    Category = "orders"
	CategoryInventory Category = "inventory"
	CategorySuppliers Category = "suppliers"
	CategoryPayments  Category = "payments"
)

// classes is the total classification table. It is build-time domain
// knowledge: every entity category used by the application must appear here.
var classes = map[Category]Class{
	CategorySessions:        ClassShared,
	CategoryAuthUsers:       ClassShared,
	CategoryPlatformCache:   ClassShared,
	CategoryBillingAccounts: ClassShared,

	CategoryCustomers: ClassTenantScoped,
	CategoryOrders:    ClassTenantScoped,
	CategoryInventory: ClassTenantScoped,
	CategorySuppliers: ClassTenantScoped,
	CategoryPayments:  ClassTenantScoped,
}

// LookupClass resolves a category, reporting whether it is classified.
func LookupClass(c Category) (Class, bool) {
	class, ok := classes[c]
	return class, ok
}

// ClassOf resolves a category and panics on a miss. Routing an unclassified
// category is a programming error, never a runtime fallback to the shared
// database.
func ClassOf(c Category) Class {
	class, ok := classes[c]
	if !ok {
		panic(fmt.Sprintf("routing: unclassified entity category %q", c))
	}
	return class
}

// Categories returns every classified category, for exhaustiveness checks.
func Categories() []Category {
	out := make([]Category, 0, len(classes))
	for c := range classes {
		out = append(out, c)
	}
	return out
}
