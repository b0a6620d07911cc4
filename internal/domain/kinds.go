package domain

// Kind identifies one of the sixteen entity kinds the sync protocol knows
// about. The string value doubles as the backing SQLite table name, which
// keeps the per-kind registry below a flat, reflection-free table instead
// of a dispatch-by-type-switch.
type Kind string

const (
	KindUsers              Kind = "users"
	KindCustomers          Kind = "customers"
	KindJobs               Kind = "jobs"
	KindCalendarEvents     Kind = "calendar_events"
	KindPricebooks         Kind = "pricebooks"
	KindProducts           Kind = "products"
	KindLocations          Kind = "locations"
	KindProductItems       Kind = "product_items"
	KindPricebookEntries   Kind = "pricebook_entries"
	KindJobLineItems       Kind = "job_line_items"
	KindQuotes             Kind = "quotes"
	KindObjectFeeds        Kind = "object_feeds"
	KindInvoices           Kind = "invoices"
	KindInvoiceLineItems   Kind = "invoice_line_items"
	KindObjectMetadata     Kind = "object_metadata"
	KindLayoutDefinitions  Kind = "layout_definitions"
)

// KindInfo carries the per-kind facts the projection reader needs: whether
// the kind carries a status/tombstone column.
type KindInfo struct {
	Kind      Kind
	HasStatus bool
}

// AllKinds lists all sixteen kinds in the fixed order the projection reader
// queries them. The serialized "data" object does not depend on this order:
// Bundle.Data is a map, and encoding/json writes its keys sorted.
var AllKinds = []KindInfo{
	{Kind: KindUsers, HasStatus: true},
	{Kind: KindCustomers, HasStatus: true},
	{Kind: KindJobs, HasStatus: true},
	{Kind: KindCalendarEvents, HasStatus: true},
	{Kind: KindPricebooks, HasStatus: true},
	{Kind: KindProducts, HasStatus: true},
	{Kind: KindLocations, HasStatus: true},
	{Kind: KindProductItems, HasStatus: true},
	{Kind: KindPricebookEntries, HasStatus: true},
	{Kind: KindJobLineItems, HasStatus: true},
	{Kind: KindQuotes, HasStatus: true},
	{Kind: KindObjectFeeds, HasStatus: true},
	{Kind: KindInvoices, HasStatus: true},
	{Kind: KindInvoiceLineItems, HasStatus: true},
	{Kind: KindObjectMetadata, HasStatus: false},
	{Kind: KindLayoutDefinitions, HasStatus: false},
}

// Table returns the SQLite table name backing k. Kind values are defined to
// already be valid table names, so this is an identity conversion kept as
// a named function for call-site clarity.
func (k Kind) Table() string {
	return string(k)
}

// Valid reports whether k is one of the sixteen known kinds.
func Valid(k Kind) bool {
	for _, info := range AllKinds {
		if info.Kind == k {
			return true
		}
	}
	return false
}
