package models

import (
	"sort"
	"strings"
)

// SortField names the attribute a listing is ordered by.
type SortField string

const (
	SortByName         SortField = "name"
	SortByModifiedTime SortField = "modifiedTime"
	SortBySize         SortField = "size"
	SortByMimeType     SortField = "mimeType"
)

// SortOrder is the direction of a listing.
type SortOrder string

const (
	Ascending  SortOrder = "asc"
	Descending SortOrder = "desc"
)

// FolderSize is the size used for records without one when sorting by size.
const FolderSize int64 = 0

// Sort is the active sort state.
type Sort struct {
	Field SortField `json:"sortBy"`
	Order SortOrder `json:"sortOrder"`
}

// DefaultSort orders by name, ascending.
var DefaultSort = Sort{Field: SortByName, Order: Ascending}

// ParseSortField returns the field named by s, or false if unknown.
func ParseSortField(s string) (SortField, bool) {
	switch SortField(s) {
	case SortByName, SortByModifiedTime, SortBySize, SortByMimeType:
		return SortField(s), true
	}
	return "", false
}

// ParseSort builds a Sort from query values, falling back to name/asc.
func ParseSort(field, order string) Sort {
	s := DefaultSort
	if f, ok := ParseSortField(field); ok {
		s.Field = f
	}
	if SortOrder(strings.ToLower(order)) == Descending {
		s.Order = Descending
	}
	return s
}

// Next returns the sort state after the user picks field: the same field
// flips the order, a new field starts ascending.
func (s Sort) Next(field SortField) Sort {
	if s.Field == field {
		if s.Order == Ascending {
			return Sort{Field: field, Order: Descending}
		}
		return Sort{Field: field, Order: Ascending}
	}
	return Sort{Field: field, Order: Ascending}
}

// Compare orders a and b by field, ascending. It returns -1, 0 or 1.
// Folders and files are not grouped.
func Compare(a, b File, field SortField) int {
	switch field {
	case SortByModifiedTime:
		return a.ModifiedTime.Compare(b.ModifiedTime)
	case SortBySize:
		as, bs := a.SizeOr(FolderSize), b.SizeOr(FolderSize)
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		}
		return 0
	case SortByMimeType:
		return strings.Compare(a.MimeType, b.MimeType)
	default:
		return strings.Compare(a.Name, b.Name)
	}
}

// SortFiles sorts files in place. Equal keys keep their incoming order.
func SortFiles(files []File, s Sort) {
	sort.SliceStable(files, func(i, j int) bool {
		c := Compare(files[i], files[j], s.Field)
		if s.Order == Descending {
			return c > 0
		}
		return c < 0
	})
}
