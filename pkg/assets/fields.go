package assets

// fieldKind describes how a column is stored, filtered and searched
type fieldKind int

const (
	kindText fieldKind = iota
	kindBool
	kindNullBool
	kindSet
	kindUUID
	kindTime
)

// field describes one column of the assets table
type field struct {
	name string
	kind fieldKind
	// maxLen bounds text fields; zero means unbounded
	maxLen int
	// writable fields may be set from a request payload
	writable bool
	// queryable fields may be used for filtering, ordering and search
	queryable bool

	text     func(*Asset) **string
	flag     func(*Asset) *bool
	nullFlag func(*Asset) **bool
	set      func(*Asset) *[]string
}

// fields lists the asset columns in table order
var fields = []field{
	{name: "id", kind: kindUUID, queryable: true},
	{name: "name", kind: kindText, maxLen: 255, writable: true, queryable: true,
		text: func(a *Asset) **string { return &a.Name }},
	{name: "department", kind: kindText, maxLen: 255, writable: true, queryable: true,
		text: func(a *Asset) **string { return &a.Department }},
	{name: "purpose", kind: kindText, maxLen: 255, writable: true, queryable: true,
		text: func(a *Asset) **string { return &a.Purpose }},
	{name: "purpose_other", kind: kindText, writable: true,
		text: func(a *Asset) **string { return &a.PurposeOther }},
	{name: "owner", kind: kindText, maxLen: 50, writable: true, queryable: true,
		text: func(a *Asset) **string { return &a.Owner }},
	{name: "private", kind: kindBool, writable: true, queryable: true,
		flag: func(a *Asset) *bool { return &a.Private }},
	{name: "research", kind: kindNullBool, writable: true, queryable: true,
		nullFlag: func(a *Asset) **bool { return &a.Research }},
	{name: "personal_data", kind: kindNullBool, writable: true, queryable: true,
		nullFlag: func(a *Asset) **bool { return &a.PersonalData }},
	{name: "data_subject", kind: kindSet, writable: true, queryable: true,
		set: func(a *Asset) *[]string { return &a.DataSubject }},
	{name: "data_category", kind: kindSet, writable: true, queryable: true,
		set: func(a *Asset) *[]string { return &a.DataCategory }},
	{name: "recipients_outside_uni", kind: kindText, maxLen: 8, writable: true, queryable: true,
		text: func(a *Asset) **string { return &a.RecipientsOutsideUni }},
	{name: "recipients_outside_uni_description", kind: kindText, maxLen: 255, writable: true,
		text: func(a *Asset) **string { return &a.RecipientsOutsideUniDescription }},
	{name: "recipients_outside_eea", kind: kindText, maxLen: 8, writable: true, queryable: true,
		text: func(a *Asset) **string { return &a.RecipientsOutsideEEA }},
	{name: "recipients_outside_eea_description", kind: kindText, maxLen: 255, writable: true,
		text: func(a *Asset) **string { return &a.RecipientsOutsideEEADescription }},
	{name: "retention", kind: kindText, maxLen: 255, writable: true, queryable: true,
		text: func(a *Asset) **string { return &a.Retention }},
	{name: "risk_type", kind: kindSet, writable: true, queryable: true,
		set: func(a *Asset) *[]string { return &a.RiskType }},
	{name: "risk_type_additional", kind: kindText, writable: true,
		text: func(a *Asset) **string { return &a.RiskTypeAdditional }},
	{name: "storage_location", kind: kindText, maxLen: 255, writable: true, queryable: true,
		text: func(a *Asset) **string { return &a.StorageLocation }},
	{name: "storage_format", kind: kindSet, writable: true, queryable: true,
		set: func(a *Asset) *[]string { return &a.StorageFormat }},
	{name: "paper_storage_security", kind: kindSet, writable: true, queryable: true,
		set: func(a *Asset) *[]string { return &a.PaperStorageSecurity }},
	{name: "digital_storage_security", kind: kindSet, writable: true, queryable: true,
		set: func(a *Asset) *[]string { return &a.DigitalStorageSecurity }},
	{name: "created_at", kind: kindTime, queryable: true},
	{name: "updated_at", kind: kindTime, queryable: true},
}

var fieldsByName = func() map[string]*field {
	m := make(map[string]*field, len(fields))
	for i := range fields {
		m[fields[i].name] = &fields[i]
	}
	return m
}()

// lookupField returns the named field, or nil
func lookupField(name string) *field {
	return fieldsByName[name]
}

// writableFields returns the fields a payload may set, in table order
func writableFields() []*field {
	out := make([]*field, 0, len(fields))
	for i := range fields {
		if fields[i].writable {
			out = append(out, &fields[i])
		}
	}
	return out
}

// readOnlyFields are accepted in payloads but ignored
var readOnlyFields = map[string]bool{
	"id":              true,
	"url":             true,
	"created_at":      true,
	"updated_at":      true,
	"is_complete":     true,
	"allowed_methods": true,
}
