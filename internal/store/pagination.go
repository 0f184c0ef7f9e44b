package store

const (
	DefaultPageSize = 50
	DefaultTopN     = 10
)

// PageSize applies the default page size to non-positive requests.
func PageSize(requested int) int {
	if requested <= 0 {
		return DefaultPageSize
	}
	return requested
}

func TopN(requested int) int {
	if requested <= 0 {
		return DefaultTopN
	}
	return requested
}
