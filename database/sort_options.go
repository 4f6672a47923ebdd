package database

const (
	SortRecent      = "recent"
	SortCreatedAsc  = "created_asc"
	SortNameNatural = "name_nat"
)

const DefaultSortOrder = SortRecent

// IsValidSortOrder checks if a string is a valid project sort order
func IsValidSortOrder(order string) bool {
	switch order {
	case SortRecent, SortCreatedAsc, SortNameNatural:
		return true
	default:
		return false
	}
}
