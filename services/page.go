package services

import "gorm.io/gorm"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Page selects a window of a list result. Zero values mean the first page of 20.
type Page struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func (p Page) normalized() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = defaultPageSize
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
	return p
}

func (p Page) apply(q *gorm.DB) *gorm.DB {
	p = p.normalized()
	return q.Limit(p.PageSize).Offset((p.Page - 1) * p.PageSize)
}
