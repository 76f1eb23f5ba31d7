package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"smartinlet/internal/apperr"
)

// Stores: набор хранилищ над одним *gorm.DB (или над транзакцией).
type Stores struct {
	db *gorm.DB

	Users   *UserStore
	Groups  *GroupStore
	Members *MemberStore
	Offers  *OfferStore
	Tokens  *TokenStore
	Inlets  *InletStore
	Sensors *SensorStore
}

func New(db *gorm.DB) *Stores { return newStores(db, false) }

func newStores(db *gorm.DB, lock bool) *Stores {
	b := base{db: db, lock: lock}
	return &Stores{
		db:      db,
		Users:   &UserStore{b},
		Groups:  &GroupStore{b},
		Members: &MemberStore{b},
		Offers:  &OfferStore{b},
		Tokens:  &TokenStore{b},
		Inlets:  &InletStore{b},
		Sensors: &SensorStore{b},
	}
}

// Tx выполняет fn в одной транзакции. Любая ошибка откатывает всё.
// Внутри транзакции одиночные чтения берут строку на запись (SELECT ... FOR UPDATE).
func (s *Stores) Tx(ctx context.Context, fn func(tx *Stores) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newStores(tx, true))
	})
}

// DB: сырой хэндл (health-проверки, миграции).
func (s *Stores) DB() *gorm.DB { return s.db }

type base struct {
	db   *gorm.DB
	lock bool
}

func (b base) q(ctx context.Context) *gorm.DB { return b.db.WithContext(ctx) }

// one: чтение одной строки, с блокировкой внутри транзакции.
func (b base) one(ctx context.Context) *gorm.DB {
	q := b.q(ctx)
	if b.lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

// mapErr переводит ошибки gorm в доменные.
func mapErr(err error, notFound string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound("%s", notFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &apperr.Error{Kind: apperr.KindConflict, Msg: "concurrent modification, retry", Err: err}
	}
	return err
}

// contains: условие поиска подстроки без учёта регистра.
func contains(db *gorm.DB, column, q string) *gorm.DB {
	if q == "" {
		return db
	}
	return db.Where("LOWER("+column+") LIKE ?", "%"+strings.ToLower(q)+"%")
}
