package services

import (
	"sort"
	"strings"

	"github.com/facette/natsort"

	"github.com/jmaka/jmakabackend/models"
)

// SortOrder selects the ordering of the upload listing.
type SortOrder string

const (
	SortDateDesc    SortOrder = "date_desc"
	SortDateAsc     SortOrder = "date_asc"
	SortNameNatural SortOrder = "name_nat"
)

// ParseSortOrder accepts "" as the default newest-first order.
func ParseSortOrder(raw string) (SortOrder, error) {
	switch SortOrder(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SortDateDesc:
		return SortDateDesc, nil
	case SortDateAsc:
		return SortDateAsc, nil
	case SortNameNatural:
		return SortNameNatural, nil
	default:
		return "", invalidf("invalid sort order '%s'", raw)
	}
}

func sortUploads(items []models.UploadRecord, order SortOrder) {
	switch order {
	case SortDateAsc:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		})
	case SortNameNatural:
		sort.SliceStable(items, func(i, j int) bool {
			return natsort.Compare(strings.ToLower(items[i].OriginalName), strings.ToLower(items[j].OriginalName))
		})
	default:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		})
	}
}

func newestComposites(items []models.CompositeRecord) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

func capped[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
