// Package threshold переводит показания датчиков в состояние клапанов.
package threshold

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"smartinlet/internal/apperr"
	"smartinlet/internal/logs"
	"smartinlet/internal/metrics"
	"smartinlet/internal/models"
	"smartinlet/internal/repo"
)

// Decide: гистерезис: выше open открываем, ниже close закрываем,
// между порогами состояние не меняется.
func Decide(reading, toOpen, toClose int, current bool) bool {
	switch {
	case reading > toOpen:
		return true
	case reading < toClose:
		return false
	}
	return current
}

type Service struct {
	stores *repo.Stores
	now    func() time.Time
}

func New(stores *repo.Stores) *Service {
	return &Service{stores: stores, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ReportReading сохраняет показание и, если датчик управляет клапаном,
// сразу пересчитывает его состояние в той же транзакции.
func (s *Service) ReportReading(ctx context.Context, kind models.DeviceKind, sensorID uint, value int) (sn *models.Sensor, err error) {
	defer func() { metrics.Observe("report_reading", err) }()
	if !kind.IsSensor() {
		return nil, apperr.Validation("unknown sensor type %q", kind)
	}
	err = s.stores.Tx(ctx, func(tx *repo.Stores) error {
		sn, err = tx.Sensors.Get(ctx, kind, sensorID)
		if err != nil {
			return err
		}
		now := s.now()
		if err := tx.Sensors.SetReading(ctx, kind, sn.ID, value, now); err != nil {
			return err
		}
		sn.Reading, sn.UpdatedAt = value, now
		if sn.InletDeviceID == nil || sn.IsBlocked {
			return nil
		}
		d, err := tx.Inlets.Get(ctx, *sn.InletDeviceID)
		if err != nil {
			return err
		}
		return s.apply(ctx, tx, d, sn, now)
	})
	if err == nil {
		metrics.Readings.WithLabelValues(string(kind)).Inc()
	}
	return sn, err
}

// PollDevice: опрос клапаном своего состояния: пересчёт по последнему
// показанию управляющего датчика.
func (s *Service) PollDevice(ctx context.Context, deviceID uint) (d *models.InletDevice, err error) {
	defer func() { metrics.Observe("poll_device", err) }()
	err = s.stores.Tx(ctx, func(tx *repo.Stores) error {
		d, err = tx.Inlets.Get(ctx, deviceID)
		if err != nil {
			return err
		}
		now := s.now()
		if kind, ok := d.ControlType.SensorKind(); ok && !d.IsBlocked {
			if sid := d.SensorID(kind); sid != nil {
				sn, err := tx.Sensors.Get(ctx, kind, *sid)
				if err != nil {
					return err
				}
				if err := s.apply(ctx, tx, d, sn, now); err != nil {
					return err
				}
			}
		}
		// опрос — признак того, что клапан на связи
		d.UpdatedAt = now
		return tx.Inlets.Update(ctx, d.ID, map[string]any{"updated_at": now})
	})
	return d, err
}

// apply применяет показание sn к клапану d, если sn им управляет.
func (s *Service) apply(ctx context.Context, tx *repo.Stores, d *models.InletDevice, sn *models.Sensor, now time.Time) error {
	if d.IsBlocked || d.ControlType != sn.Kind.Control() {
		return nil
	}
	if sid := d.SensorID(sn.Kind); sid == nil || *sid != sn.ID {
		return nil
	}
	next := Decide(sn.Reading, sn.LimitToOpen, sn.LimitToClose, d.IsOpened)
	decision := "unchanged"
	if next != d.IsOpened {
		if err := tx.Inlets.Update(ctx, d.ID, map[string]any{"is_opened": next, "updated_at": now}); err != nil {
			return err
		}
		d.IsOpened, d.UpdatedAt = next, now
		decision = "closed"
		if next {
			decision = "opened"
		}
		logs.Logger.WithFields(logrus.Fields{
			"inlet": d.ID, "kind": sn.Kind, "sensor": sn.ID, "reading": sn.Reading, "opened": next,
		}).Info("inlet state changed by threshold")
	}
	metrics.Valves.WithLabelValues(string(sn.Kind), decision).Inc()
	return nil
}
