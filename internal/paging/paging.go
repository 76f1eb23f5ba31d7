// Package paging — разбор параметров страницы и обёртка ответа со списком.
package paging

import (
	"net/url"
	"strconv"

	"gorm.io/gorm"
)

const (
	DefaultSize = 10
	MaxSize     = 100
)

type Page struct {
	Index int
	Size  int
}

// FromQuery читает page / page_size; некорректные значения заменяются значениями по умолчанию.
func FromQuery(q url.Values) Page {
	p := Page{Index: 1, Size: DefaultSize}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		p.Index = v
	}
	if v, err := strconv.Atoi(q.Get("page_size")); err == nil {
		p.Size = v
	}
	return p.Normalize()
}

func (p Page) Normalize() Page {
	if p.Index < 1 {
		p.Index = 1
	}
	if p.Size < 1 {
		p.Size = DefaultSize
	}
	if p.Size > MaxSize {
		p.Size = MaxSize
	}
	return p
}

func (p Page) Offset() int { return (p.Index - 1) * p.Size }

// Scope: gorm-скоуп для Offset/Limit.
func (p Page) Scope(db *gorm.DB) *gorm.DB {
	p = p.Normalize()
	return db.Offset(p.Offset()).Limit(p.Size)
}

type Result[T any] struct {
	PageIndex int `json:"pageIndex"`
	PageSize  int `json:"pageSize"`
	PageCount int `json:"pageCount"`
	Items     []T `json:"items"`
}

// NewResult собирает страницу; total — общее число записей.
func NewResult[T any](items []T, p Page, total int64) Result[T] {
	p = p.Normalize()
	if items == nil {
		items = []T{}
	}
	count := int((total + int64(p.Size) - 1) / int64(p.Size))
	return Result[T]{PageIndex: p.Index, PageSize: p.Size, PageCount: count, Items: items}
}
