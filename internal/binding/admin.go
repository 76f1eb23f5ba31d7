package binding

import (
	"context"

	"github.com/sirupsen/logrus"

	"smartinlet/internal/access"
	"smartinlet/internal/apperr"
	"smartinlet/internal/metrics"
	"smartinlet/internal/models"
	"smartinlet/internal/repo"
)

// Registered: результат регистрации нового устройства.
type Registered struct {
	Kind models.DeviceKind `json:"kind"`
	ID   uint              `json:"id"`
	Name string            `json:"name"`
}

// Register создаёт незанятое устройство со значениями по умолчанию.
func (e *Engine) Register(ctx context.Context, kind models.DeviceKind, accessCode string) (out *Registered, err error) {
	defer func() { metrics.Observe("register_device", err) }()
	actor, err := access.RequireDeviceAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if n := len(accessCode); n < minAccessCodeLen || n > maxAccessCodeLen {
		return nil, apperr.Validation("access code must be %d-%d characters", minAccessCodeLen, maxAccessCodeLen)
	}
	hash, err := e.hasher.Hash(accessCode)
	if err != nil {
		return nil, err
	}

	now := e.now()
	switch kind {
	case models.KindInlet:
		d := &models.InletDevice{
			AccessCode:  hash,
			Name:        models.DefaultInletName,
			ControlType: models.ControlManual,
			UpdatedAt:   now,
		}
		if err := e.stores.Inlets.Create(ctx, d); err != nil {
			return nil, err
		}
		out = &Registered{Kind: kind, ID: d.ID, Name: d.Name}
	default:
		s := &models.Sensor{Kind: kind, AccessCode: hash, UpdatedAt: now}
		if kind == models.KindAir {
			s.Name, s.Reading = models.DefaultAirName, models.DefaultAqi
			s.LimitToOpen, s.LimitToClose = models.DefaultAqiToOpen, models.DefaultAqiToClose
		} else {
			s.Name, s.Reading = models.DefaultTempName, models.DefaultKelvins
			s.LimitToOpen, s.LimitToClose = models.DefaultKelvinToOpen, models.DefaultKelvinToClose
		}
		if err := e.stores.Sensors.Create(ctx, s); err != nil {
			return nil, err
		}
		out = &Registered{Kind: kind, ID: s.ID, Name: s.Name}
	}
	e.log("register", actor, logrus.Fields{"kind": kind, "id": out.ID})
	return out, nil
}

// ToggleBlock переключает блокировку. Блокировка освобождает устройство из
// группы и снимает привязки; разблокированное устройство остаётся незанятым.
func (e *Engine) ToggleBlock(ctx context.Context, kind models.DeviceKind, id uint) (blocked bool, err error) {
	defer func() { metrics.Observe("toggle_block", err) }()
	actor, err := access.RequireDeviceAdmin(ctx)
	if err != nil {
		return false, err
	}
	if err := checkKind(kind); err != nil {
		return false, err
	}
	err = e.stores.Tx(ctx, func(tx *repo.Stores) error {
		now := e.now()
		if kind == models.KindInlet {
			d, err := tx.Inlets.Get(ctx, id)
			if err != nil {
				return err
			}
			blocked = !d.IsBlocked
			if blocked {
				if err := releaseFromGroup(ctx, tx, kind, id, nil, now); err != nil {
					return err
				}
			}
			return tx.Inlets.Update(ctx, id, map[string]any{"is_blocked": blocked, "updated_at": now})
		}
		s, err := tx.Sensors.Get(ctx, kind, id)
		if err != nil {
			return err
		}
		blocked = !s.IsBlocked
		if blocked {
			if err := releaseFromGroup(ctx, tx, kind, id, nil, now); err != nil {
				return err
			}
		}
		return tx.Sensors.SetBlocked(ctx, kind, id, blocked, now)
	})
	if err == nil {
		e.log("toggle_block", actor, logrus.Fields{"kind": kind, "id": id, "blocked": blocked})
	}
	return blocked, err
}

// Delete удаляет устройство, предварительно сняв привязки с обеих сторон.
func (e *Engine) Delete(ctx context.Context, kind models.DeviceKind, id uint) (err error) {
	defer func() { metrics.Observe("delete_device", err) }()
	actor, err := access.RequireDeviceAdmin(ctx)
	if err != nil {
		return err
	}
	if err := checkKind(kind); err != nil {
		return err
	}
	err = e.stores.Tx(ctx, func(tx *repo.Stores) error {
		now := e.now()
		if kind == models.KindInlet {
			d, err := tx.Inlets.Get(ctx, id)
			if err != nil {
				return err
			}
			if err := unbindInlet(ctx, tx, d, now); err != nil {
				return err
			}
			return tx.Inlets.Delete(ctx, id)
		}
		s, err := tx.Sensors.Get(ctx, kind, id)
		if err != nil {
			return err
		}
		if err := unbindSensor(ctx, tx, s, now); err != nil {
			return err
		}
		return tx.Sensors.Delete(ctx, kind, id)
	})
	if err == nil {
		e.log("delete", actor, logrus.Fields{"kind": kind, "id": id})
	}
	return err
}

// AdminRename: переименование без проверки группы.
func (e *Engine) AdminRename(ctx context.Context, kind models.DeviceKind, id uint, name string) (err error) {
	defer func() { metrics.Observe("admin_rename", err) }()
	if _, err := access.RequireDeviceAdmin(ctx); err != nil {
		return err
	}
	if err := checkKind(kind); err != nil {
		return err
	}
	if name, err = cleanName(name); err != nil {
		return err
	}
	return e.stores.Tx(ctx, func(tx *repo.Stores) error {
		if kind == models.KindInlet {
			if _, err := tx.Inlets.Get(ctx, id); err != nil {
				return err
			}
			return tx.Inlets.Update(ctx, id, map[string]any{"name": name, "updated_at": e.now()})
		}
		if _, err := tx.Sensors.Get(ctx, kind, id); err != nil {
			return err
		}
		return tx.Sensors.SetName(ctx, kind, id, name, e.now())
	})
}
