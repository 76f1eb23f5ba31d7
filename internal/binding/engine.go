// Package binding — захват устройств группами, режимы управления клапанов
// и привязка датчиков.
package binding

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"smartinlet/internal/access"
	"smartinlet/internal/apperr"
	"smartinlet/internal/logs"
	"smartinlet/internal/metrics"
	"smartinlet/internal/models"
	"smartinlet/internal/repo"
	"smartinlet/internal/sanitize"
	"smartinlet/internal/secrets"
)

const (
	maxNameLen       = 50
	minAccessCodeLen = 6
	maxAccessCodeLen = 100
)

type Engine struct {
	stores *repo.Stores
	hasher secrets.Hasher
	now    func() time.Time
}

func New(stores *repo.Stores, hasher secrets.Hasher) *Engine {
	return &Engine{stores: stores, hasher: hasher, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock подменяет часы (для тестов).
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// editor проверяет, что actor — участник группы с правом canEditDevices.
func editor(ctx context.Context, tx *repo.Stores, groupName string, actor *access.Identity) (*models.Group, error) {
	g, err := tx.Groups.ByName(ctx, groupName)
	if err != nil {
		return nil, err
	}
	m, err := tx.Members.Get(ctx, g.ID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !m.CanEditDevices {
		return nil, apperr.Forbidden("you are not allowed to manage devices of the group")
	}
	return g, nil
}

func (e *Engine) log(op string, actor *access.Identity, fields logrus.Fields) {
	entry := logs.Logger.WithField("op", op)
	if actor != nil {
		entry = entry.WithField("actor", actor.Username)
	}
	entry.WithFields(fields).Info("device state changed")
}

// Claim присваивает незанятое устройство группе по коду доступа. Привязки не меняются.
func (e *Engine) Claim(ctx context.Context, groupName string, kind models.DeviceKind, id uint, accessCode string) (err error) {
	defer func() { metrics.Observe("claim", err) }()
	actor, err := access.Actor(ctx)
	if err != nil {
		return err
	}
	if err := checkKind(kind); err != nil {
		return err
	}
	err = e.stores.Tx(ctx, func(tx *repo.Stores) error {
		g, err := editor(ctx, tx, groupName, actor)
		if err != nil {
			return err
		}
		now := e.now()
		if kind == models.KindInlet {
			d, err := tx.Inlets.Get(ctx, id)
			if err != nil {
				return err
			}
			if d.IsBlocked {
				return apperr.InvalidState("device is blocked")
			}
			if !e.hasher.Verify(accessCode, d.AccessCode) {
				return apperr.AuthFailed("invalid access code")
			}
			if d.GroupID != nil {
				return apperr.Conflict("device is already claimed")
			}
			return tx.Inlets.Update(ctx, d.ID, map[string]any{"group_id": g.ID, "updated_at": now})
		}
		s, err := tx.Sensors.Get(ctx, kind, id)
		if err != nil {
			return err
		}
		if s.IsBlocked {
			return apperr.InvalidState("device is blocked")
		}
		if !e.hasher.Verify(accessCode, s.AccessCode) {
			return apperr.AuthFailed("invalid access code")
		}
		if s.GroupID != nil {
			return apperr.Conflict("device is already claimed")
		}
		return tx.Sensors.SetGroup(ctx, kind, s.ID, &g.ID, now)
	})
	if err == nil {
		e.log("claim", actor, logrus.Fields{"group": groupName, "kind": kind, "id": id})
	}
	return err
}

// Release возвращает устройство из группы в незанятое состояние и снимает привязки.
func (e *Engine) Release(ctx context.Context, groupName string, kind models.DeviceKind, id uint) (err error) {
	defer func() { metrics.Observe("release", err) }()
	actor, err := access.Actor(ctx)
	if err != nil {
		return err
	}
	if err := checkKind(kind); err != nil {
		return err
	}
	err = e.stores.Tx(ctx, func(tx *repo.Stores) error {
		g, err := editor(ctx, tx, groupName, actor)
		if err != nil {
			return err
		}
		return releaseFromGroup(ctx, tx, kind, id, &g.ID, e.now())
	})
	if err == nil {
		e.log("release", actor, logrus.Fields{"group": groupName, "kind": kind, "id": id})
	}
	return err
}

// releaseFromGroup снимает привязки и группу. groupID != nil требует,
// чтобы устройство принадлежало этой группе.
func releaseFromGroup(ctx context.Context, tx *repo.Stores, kind models.DeviceKind, id uint, groupID *uint, now time.Time) error {
	if kind == models.KindInlet {
		var d *models.InletDevice
		var err error
		if groupID != nil {
			d, err = tx.Inlets.InGroup(ctx, id, *groupID)
		} else {
			d, err = tx.Inlets.Get(ctx, id)
		}
		if err != nil {
			return err
		}
		if err := unbindInlet(ctx, tx, d, now); err != nil {
			return err
		}
		return tx.Inlets.Update(ctx, d.ID, map[string]any{"group_id": nil, "updated_at": now})
	}
	var s *models.Sensor
	var err error
	if groupID != nil {
		s, err = tx.Sensors.InGroup(ctx, kind, id, *groupID)
	} else {
		s, err = tx.Sensors.Get(ctx, kind, id)
	}
	if err != nil {
		return err
	}
	if err := unbindSensor(ctx, tx, s, now); err != nil {
		return err
	}
	return tx.Sensors.SetGroup(ctx, kind, s.ID, nil, now)
}

// ReleaseGroup освобождает все устройства группы (перед её удалением).
func ReleaseGroup(ctx context.Context, tx *repo.Stores, groupID uint, now time.Time) error {
	ids, err := tx.Inlets.IDsInGroup(ctx, groupID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := releaseFromGroup(ctx, tx, models.KindInlet, id, nil, now); err != nil {
			return err
		}
	}
	for _, kind := range []models.DeviceKind{models.KindAir, models.KindTemp} {
		ids, err := tx.Sensors.IDsInGroup(ctx, kind, groupID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := releaseFromGroup(ctx, tx, kind, id, nil, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// SetControlMode переключает режим клапана. Для air/temp датчик должен
// быть в той же группе, не заблокирован и не привязан к другому клапану.
func (e *Engine) SetControlMode(ctx context.Context, groupName string, deviceID uint, mode models.ControlType, sensorID *uint) (err error) {
	defer func() { metrics.Observe("set_control_mode", err) }()
	actor, err := access.Actor(ctx)
	if err != nil {
		return err
	}
	kind, needsSensor := mode.SensorKind()
	if mode != models.ControlManual && !needsSensor {
		return apperr.Validation("unknown control type %q", mode)
	}
	if needsSensor && sensorID == nil {
		return apperr.Validation("sensor id is required for %s control", mode)
	}

	err = e.stores.Tx(ctx, func(tx *repo.Stores) error {
		g, err := editor(ctx, tx, groupName, actor)
		if err != nil {
			return err
		}
		d, err := tx.Inlets.InGroup(ctx, deviceID, g.ID)
		if err != nil {
			return err
		}
		now := e.now()
		if !needsSensor {
			return unbindInlet(ctx, tx, d, now)
		}
		s, err := bindable(ctx, tx, kind, *sensorID, g.ID, d.ID)
		if err != nil {
			return err
		}
		if d.ControlType == mode && d.SensorID(kind) != nil && *d.SensorID(kind) == s.ID {
			return nil
		}
		return bind(ctx, tx, d, s, now)
	})
	if err == nil {
		f := logrus.Fields{"group": groupName, "inlet": deviceID, "mode": mode}
		if sensorID != nil {
			f["sensor"] = *sensorID
		}
		e.log("set_control_mode", actor, f)
	}
	return err
}

// SwapSensor меняет управляющий датчик на другой того же вида.
func (e *Engine) SwapSensor(ctx context.Context, groupName string, deviceID uint, kind models.DeviceKind, sensorID uint) (err error) {
	defer func() { metrics.Observe("swap_sensor", err) }()
	actor, err := access.Actor(ctx)
	if err != nil {
		return err
	}
	if !kind.IsSensor() {
		return apperr.Validation("unknown sensor type %q", kind)
	}
	err = e.stores.Tx(ctx, func(tx *repo.Stores) error {
		g, err := editor(ctx, tx, groupName, actor)
		if err != nil {
			return err
		}
		d, err := tx.Inlets.InGroup(ctx, deviceID, g.ID)
		if err != nil {
			return err
		}
		if d.ControlType != kind.Control() {
			return apperr.InvalidState("device is not controlled by a %s sensor", kind)
		}
		s, err := bindable(ctx, tx, kind, sensorID, g.ID, d.ID)
		if err != nil {
			return err
		}
		if cur := d.SensorID(kind); cur != nil && *cur == s.ID {
			return nil
		}
		return bind(ctx, tx, d, s, e.now())
	})
	if err == nil {
		e.log("swap_sensor", actor, logrus.Fields{"group": groupName, "inlet": deviceID, "kind": kind, "sensor": sensorID})
	}
	return err
}

// bindable загружает датчик, который можно привязать к клапану deviceID.
func bindable(ctx context.Context, tx *repo.Stores, kind models.DeviceKind, sensorID, groupID, deviceID uint) (*models.Sensor, error) {
	s, err := tx.Sensors.InGroup(ctx, kind, sensorID, groupID)
	if err != nil {
		return nil, err
	}
	if s.IsBlocked {
		return nil, apperr.InvalidState("sensor is blocked")
	}
	if s.InletDeviceID != nil && *s.InletDeviceID != deviceID {
		return nil, apperr.InvalidState("sensor is bound to another device")
	}
	return s, nil
}

// ChangeLimits задаёт пороги датчика; open обязан быть больше close.
func (e *Engine) ChangeLimits(ctx context.Context, groupName string, kind models.DeviceKind, sensorID uint, toOpen, toClose int) (err error) {
	defer func() { metrics.Observe("change_limits", err) }()
	actor, err := access.Actor(ctx)
	if err != nil {
		return err
	}
	if !kind.IsSensor() {
		return apperr.Validation("unknown sensor type %q", kind)
	}
	if toOpen <= toClose {
		return apperr.Validation("limit to open (%d) must be greater than limit to close (%d)", toOpen, toClose)
	}
	err = e.stores.Tx(ctx, func(tx *repo.Stores) error {
		g, err := editor(ctx, tx, groupName, actor)
		if err != nil {
			return err
		}
		s, err := tx.Sensors.InGroup(ctx, kind, sensorID, g.ID)
		if err != nil {
			return err
		}
		return tx.Sensors.SetLimits(ctx, kind, s.ID, toOpen, toClose, e.now())
	})
	if err == nil {
		e.log("change_limits", actor, logrus.Fields{"kind": kind, "sensor": sensorID, "open": toOpen, "close": toClose})
	}
	return err
}

// Rename переименовывает устройство группы.
func (e *Engine) Rename(ctx context.Context, groupName string, kind models.DeviceKind, id uint, name string) (err error) {
	defer func() { metrics.Observe("rename", err) }()
	actor, err := access.Actor(ctx)
	if err != nil {
		return err
	}
	if err := checkKind(kind); err != nil {
		return err
	}
	name, err = cleanName(name)
	if err != nil {
		return err
	}
	return e.stores.Tx(ctx, func(tx *repo.Stores) error {
		g, err := editor(ctx, tx, groupName, actor)
		if err != nil {
			return err
		}
		if kind == models.KindInlet {
			d, err := tx.Inlets.InGroup(ctx, id, g.ID)
			if err != nil {
				return err
			}
			return tx.Inlets.Update(ctx, d.ID, map[string]any{"name": name, "updated_at": e.now()})
		}
		s, err := tx.Sensors.InGroup(ctx, kind, id, g.ID)
		if err != nil {
			return err
		}
		return tx.Sensors.SetName(ctx, kind, s.ID, name, e.now())
	})
}

// ToggleOpen: ручное открытие/закрытие; только в режиме manual.
func (e *Engine) ToggleOpen(ctx context.Context, groupName string, deviceID uint) (opened bool, err error) {
	defer func() { metrics.Observe("toggle_open", err) }()
	actor, err := access.Actor(ctx)
	if err != nil {
		return false, err
	}
	err = e.stores.Tx(ctx, func(tx *repo.Stores) error {
		g, err := editor(ctx, tx, groupName, actor)
		if err != nil {
			return err
		}
		d, err := tx.Inlets.InGroup(ctx, deviceID, g.ID)
		if err != nil {
			return err
		}
		if d.ControlType != models.ControlManual {
			return apperr.InvalidState("device is not controlled manually")
		}
		opened = !d.IsOpened
		return tx.Inlets.Update(ctx, d.ID, map[string]any{"is_opened": opened, "updated_at": e.now()})
	})
	if err == nil {
		e.log("toggle_open", actor, logrus.Fields{"inlet": deviceID, "opened": opened})
	}
	return opened, err
}

func checkKind(kind models.DeviceKind) error {
	if kind != models.KindInlet && !kind.IsSensor() {
		return apperr.Validation("unknown device type %q", kind)
	}
	return nil
}

func cleanName(name string) (string, error) {
	name = sanitize.Text(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLen {
		return "", apperr.Validation("name must be 1-%d characters", maxNameLen)
	}
	return name, nil
}
