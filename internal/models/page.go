package models

import "github.com/your-org/faceapi/internal/resultcode"

const MaxPageSize = 1000

// PageRequest addresses items [(Page-1)*Size, Page*Size) of an ordered collection.
type PageRequest struct {
	Page int
	Size int
}

func (p PageRequest) Validate() error {
	if p.Page < 1 {
		return resultcode.Validationf("page must be >= 1, got %d", p.Page)
	}
	if p.Size < 1 || p.Size > MaxPageSize {
		return resultcode.Validationf("size must be within [1, %d], got %d", MaxPageSize, p.Size)
	}
	return nil
}

func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Size
}

// Page is one page of a listing.
type Page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Size  int `json:"size"`
	Total int `json:"total"`
}

// Slice cuts one page out of an already ordered collection.
func Slice[T any](all []T, req PageRequest) Page[T] {
	out := Page[T]{Items: []T{}, Page: req.Page, Size: req.Size, Total: len(all)}
	start := req.Offset()
	if start >= len(all) {
		return out
	}
	end := start + req.Size
	if end > len(all) {
		end = len(all)
	}
	out.Items = append(out.Items, all[start:end]...)
	return out
}
