package binding

import (
	"context"
	"errors"
	"time"

	"smartinlet/internal/apperr"
	"smartinlet/internal/models"
	"smartinlet/internal/repo"
)

// Единственный путь записи колонок привязки: обе стороны меняются
// внутри одной транзакции и только через эти функции.

// unbindInlet снимает с клапана все датчики и переводит его в manual.
func unbindInlet(ctx context.Context, tx *repo.Stores, d *models.InletDevice, now time.Time) error {
	for _, kind := range []models.DeviceKind{models.KindAir, models.KindTemp} {
		sid := d.SensorID(kind)
		if sid == nil {
			continue
		}
		err := tx.Sensors.SetDevice(ctx, kind, *sid, nil, now)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
	}
	if d.ControlType == models.ControlManual && d.AirSensorID == nil && d.TempSensorID == nil {
		return nil
	}
	if err := tx.Inlets.SetControl(ctx, d.ID, models.ControlManual, nil, nil, now); err != nil {
		return err
	}
	d.ControlType, d.AirSensorID, d.TempSensorID, d.UpdatedAt = models.ControlManual, nil, nil, now
	return nil
}

// unbindSensor отвязывает датчик от его клапана; клапан остаётся без
// управляющего датчика и поэтому уходит в manual.
func unbindSensor(ctx context.Context, tx *repo.Stores, s *models.Sensor, now time.Time) error {
	if s.InletDeviceID == nil {
		return nil
	}
	d, err := tx.Inlets.Get(ctx, *s.InletDeviceID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
	case err != nil:
		return err
	default:
		if sid := d.SensorID(s.Kind); sid != nil && *sid == s.ID {
			if err := unbindInlet(ctx, tx, d, now); err != nil {
				return err
			}
		}
	}
	// обратная ссылка могла указывать на клапан, который ссылается на другой датчик
	if err := tx.Sensors.SetDevice(ctx, s.Kind, s.ID, nil, now); err != nil {
		return err
	}
	s.InletDeviceID = nil
	return nil
}

// bind привязывает датчик к клапану и выставляет соответствующий режим.
// Прежняя привязка клапана (любого вида) снимается первой.
func bind(ctx context.Context, tx *repo.Stores, d *models.InletDevice, s *models.Sensor, now time.Time) error {
	if err := unbindInlet(ctx, tx, d, now); err != nil {
		return err
	}
	if err := tx.Sensors.SetDevice(ctx, s.Kind, s.ID, &d.ID, now); err != nil {
		return err
	}
	var air, temp *uint
	if s.Kind == models.KindAir {
		air = &s.ID
	} else {
		temp = &s.ID
	}
	ct := s.Kind.Control()
	if err := tx.Inlets.SetControl(ctx, d.ID, ct, air, temp, now); err != nil {
		return err
	}
	d.ControlType, d.AirSensorID, d.TempSensorID, d.UpdatedAt = ct, air, temp, now
	s.InletDeviceID = &d.ID
	return nil
}
