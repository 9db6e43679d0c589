package models

import (
	"testing"
	"time"
)

func names(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
}

func equalNames(t *testing.T, got []File, want ...string) {
	t.Helper()
	g := names(got)
	if len(g) != len(want) {
		t.Fatalf("names = %v, want %v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("names = %v, want %v", g, want)
		}
	}
}

func TestSortFilesByNameInterleavesFolders(t *testing.T) {
	files := []File{
		{Name: "zeta.txt", MimeType: "text/plain"},
		{Name: "beta", MimeType: FolderMimeType},
		{Name: "alpha.png", MimeType: "image/png"},
		{Name: "gamma", MimeType: FolderMimeType},
	}
	SortFiles(files, Sort{Field: SortByName, Order: Ascending})
	equalNames(t, files, "alpha.png", "beta", "gamma", "zeta.txt")

	SortFiles(files, Sort{Field: SortByName, Order: Descending})
	equalNames(t, files, "zeta.txt", "gamma", "beta", "alpha.png")
}

func TestSortFilesBySizeFoldersSmallest(t *testing.T) {
	files := []File{
		{Name: "big", Size: Int64(500)},
		{Name: "dir", MimeType: FolderMimeType},
		{Name: "small", Size: Int64(10)},
	}
	SortFiles(files, Sort{Field: SortBySize, Order: Ascending})
	equalNames(t, files, "dir", "small", "big")
}

func TestSortFilesStableOnTies(t *testing.T) {
	files := []File{
		{Name: "first", MimeType: "text/plain"},
		{Name: "second", MimeType: "image/png"},
		{Name: "third", MimeType: "text/plain"},
	}
	SortFiles(files, Sort{Field: SortByMimeType, Order: Ascending})
	equalNames(t, files, "second", "first", "third")

	SortFiles(files, Sort{Field: SortByMimeType, Order: Descending})
	equalNames(t, files, "first", "third", "second")
}

func TestSortFilesByModifiedTime(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	files := []File{
		{Name: "new", ModifiedTime: base.Add(2 * time.Hour)},
		{Name: "old", ModifiedTime: base},
		{Name: "mid", ModifiedTime: base.Add(time.Hour)},
	}
	SortFiles(files, Sort{Field: SortByModifiedTime, Order: Ascending})
	equalNames(t, files, "old", "mid", "new")
}

func TestSortNext(t *testing.T) {
	s := Sort{Field: SortByName, Order: Ascending}

	s = s.Next(SortByName)
	if s.Order != Descending {
		t.Errorf("toggle same field: order = %q, want %q", s.Order, Descending)
	}

	s = s.Next(SortBySize)
	if s.Field != SortBySize || s.Order != Ascending {
		t.Errorf("new field: got %+v, want size/asc", s)
	}
}

func TestParseSortFallsBack(t *testing.T) {
	s := ParseSort("bogus", "sideways")
	if s != DefaultSort {
		t.Errorf("ParseSort = %+v, want %+v", s, DefaultSort)
	}
	s = ParseSort("size", "DESC")
	if s.Field != SortBySize || s.Order != Descending {
		t.Errorf("ParseSort = %+v, want size/desc", s)
	}
}
