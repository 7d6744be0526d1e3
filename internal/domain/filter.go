package domain

// QueryFilter is the transient per-request search input. A zero Limit
// means "use the configured default".
type QueryFilter struct {
	Query      string
	Region     string
	Unit       string
	Vendor     string
	MinQuality *int
	Limit      int
}
