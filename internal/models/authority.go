package models

// Authority categories. A category determines which questions apply to an
// authority and which section weighting row is used for it.
const (
	CategorySingleTier        = "Single Tier"
	CategoryDistrict          = "District"
	CategoryCounty            = "County"
	CategoryNorthernIreland   = "Northern Ireland"
	CategoryCombinedAuthority = "Combined Authority"
)

// AuthorityCategories lists the known categories in reporting order.
var AuthorityCategories = []string{
	CategorySingleTier,
	CategoryDistrict,
	CategoryCounty,
	CategoryNorthernIreland,
	CategoryCombinedAuthority,
}

// Authority is a public body being scored. Type is the short authority-type
// code (CTY, LBO, COMB, ...) used for exception matching; Country is the
// lower-cased country name used alongside the category.
type Authority struct {
	ID        int64  `db:"id" json:"id"`
	UniqueID  string `db:"unique_id" json:"unique_id"`
	Name      string `db:"name" json:"name"`
	Type      string `db:"type" json:"type"`
	Country   string `db:"country" json:"country"`
	Category  string `db:"category" json:"category"`
	DoNotMark bool   `db:"do_not_mark" json:"do_not_mark"`
}

// IsCombined reports whether the authority is scored against the
// combined-authority sections.
func (a Authority) IsCombined() bool {
	return a.Category == CategoryCombinedAuthority
}
