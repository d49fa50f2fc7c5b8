// Package catalog is the static registry of data attributes eligible for AI
// consumption. Entries are immutable; the catalog is versioned as a whole and
// never user-definable at runtime.
package catalog

// Version identifies the current attribute catalog revision. Bump when
// attributes are added or retired.
const Version = "1.0"

// Attribute is a catalog-registered data field. IDs are dot-namespaced as
// "category.field" and stable across catalog revisions.
type Attribute struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Category groups attributes under a display name.
type Category struct {
	Key        string      `json:"key"`
	Name       string      `json:"name"`
	Attributes []Attribute `json:"attributes"`
}

// categories is the fixed registry, in stable display order.
var categories = []Category{
	{
		Key:  "user",
		Name: "Personal Information",
		Attributes: []Attribute{
			{ID: "user.income", Category: "user", Name: "Income", Description: "Annual income for financial analysis"},
			{ID: "user.creditScore", Category: "user", Name: "Credit Score", Description: "Credit score for loan eligibility"},
			{ID: "user.dateOfBirth", Category: "user", Name: "Date of Birth", Description: "Age calculation for eligibility"},
			{ID: "user.employmentStatus", Category: "user", Name: "Employment Status", Description: "Employment status for financial assessment"},
			{ID: "user.address", Category: "user", Name: "Address", Description: "Location data for regional analysis"},
			{ID: "user.email", Category: "user", Name: "Email", Description: "Contact information"},
			{ID: "user.firstName", Category: "user", Name: "First Name", Description: "Personal identification"},
			{ID: "user.lastName", Category: "user", Name: "Last Name", Description: "Personal identification"},
		},
	},
	{
		Key:  "accounts",
		Name: "Account Information",
		Attributes: []Attribute{
			{ID: "accounts.balance", Category: "accounts", Name: "Account Balance", Description: "Current account balances"},
			{ID: "accounts.accountType", Category: "accounts", Name: "Account Type", Description: "Types of accounts held"},
			{ID: "accounts.accountNumber", Category: "accounts", Name: "Account Number", Description: "Account identifiers"},
			{ID: "accounts.status", Category: "accounts", Name: "Account Status", Description: "Account status information"},
		},
	},
	{
		Key:  "transactions",
		Name: "Transaction Data",
		Attributes: []Attribute{
			{ID: "transactions.amount", Category: "transactions", Name: "Transaction Amount", Description: "Transaction amounts for spending analysis"},
			{ID: "transactions.category", Category: "transactions", Name: "Transaction Category", Description: "Spending categories"},
			{ID: "transactions.description", Category: "transactions", Name: "Transaction Description", Description: "Transaction details"},
			{ID: "transactions.type", Category: "transactions", Name: "Transaction Type", Description: "Debit or credit transactions"},
			{ID: "transactions.createdAt", Category: "transactions", Name: "Transaction Date", Description: "When transactions occurred"},
			{ID: "transactions.merchantName", Category: "transactions", Name: "Merchant Name", Description: "Where transactions occurred"},
		},
	},
	{
		Key:  "savings_accounts",
		Name: "Savings Accounts",
		Attributes: []Attribute{
			{ID: "savings_accounts.balance", Category: "savings_accounts", Name: "Savings Balance", Description: "Savings account balances"},
			{ID: "savings_accounts.accountType", Category: "savings_accounts", Name: "Savings Account Type", Description: "Type of savings account"},
			{ID: "savings_accounts.apy", Category: "savings_accounts", Name: "APY", Description: "Annual percentage yield"},
			{ID: "savings_accounts.interestRate", Category: "savings_accounts", Name: "Interest Rate", Description: "Interest rate on savings"},
		},
	},
	{
		Key:  "savings_goals",
		Name: "Savings Goals",
		Attributes: []Attribute{
			{ID: "savings_goals.targetAmount", Category: "savings_goals", Name: "Goal Target", Description: "Target savings amounts"},
			{ID: "savings_goals.currentAmount", Category: "savings_goals", Name: "Goal Progress", Description: "Current progress toward goals"},
			{ID: "savings_goals.monthlyContribution", Category: "savings_goals", Name: "Monthly Contribution", Description: "Monthly savings contributions"},
			{ID: "savings_goals.status", Category: "savings_goals", Name: "Goal Status", Description: "Status of savings goals"},
		},
	},
}

// byID is derived once at init from the registry above.
var byID = func() map[string]Attribute {
	m := make(map[string]Attribute)
	for _, c := range categories {
		for _, a := range c.Attributes {
			m[a.ID] = a
		}
	}
	return m
}()

// Registry is the interface services depend on. Tests inject smaller
// catalogs to exercise scoring and permission math.
type Registry interface {
	Categories() []Category
	Lookup(id string) (Attribute, bool)
	Size() int
}

type registry struct{}

// Default returns the built-in production catalog.
func Default() Registry { return registry{} }

// Categories returns all categories in stable display order. The returned
// slice shares the backing arrays; callers must not mutate it.
func (registry) Categories() []Category { return categories }

// Lookup resolves an attribute by its dot-namespaced ID.
func (registry) Lookup(id string) (Attribute, bool) {
	a, ok := byID[id]
	return a, ok
}

// Size returns the total number of attributes across all categories.
func (registry) Size() int { return len(byID) }

// Static builds a Registry from explicit categories. Test helper and the
// backing for fixture catalogs.
func Static(cats []Category) Registry {
	m := make(map[string]Attribute)
	for _, c := range cats {
		for _, a := range c.Attributes {
			m[a.ID] = a
		}
	}
	return &staticRegistry{cats: cats, byID: m}
}

type staticRegistry struct {
	cats []Category
	byID map[string]Attribute
}

func (r *staticRegistry) Categories() []Category { return r.cats }

func (r *staticRegistry) Lookup(id string) (Attribute, bool) {
	a, ok := r.byID[id]
	return a, ok
}

func (r *staticRegistry) Size() int { return len(r.byID) }
