package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"smartinlet/internal/models"
	"smartinlet/internal/paging"
)

// SensorStore: датчики воздуха и температуры за одним интерфейсом.
// Ссылка на клапан меняется только через SetDevice.
type SensorStore struct{ base }

type sensorTable struct {
	name    string
	model   func() any
	reading string
	open    string
	close   string
}

var sensorTables = map[models.DeviceKind]sensorTable{
	models.KindAir: {
		name: "air_sensors", model: func() any { return &models.AirSensor{} },
		reading: "aqi", open: "aqi_limit_to_open", close: "aqi_limit_to_close",
	},
	models.KindTemp: {
		name: "temp_sensors", model: func() any { return &models.TempSensor{} },
		reading: "kelvins", open: "kelvin_limit_to_open", close: "kelvin_limit_to_close",
	},
}

func table(kind models.DeviceKind) (sensorTable, error) {
	t, ok := sensorTables[kind]
	if !ok {
		return sensorTable{}, fmt.Errorf("not a sensor kind: %q", kind)
	}
	return t, nil
}

// SensorView: датчик с именами группы и клапана.
type SensorView struct {
	ID              uint      `json:"id"`
	GroupName       *string   `json:"group"`
	InletDeviceID   *uint     `json:"inletDeviceId"`
	InletDeviceName *string   `json:"inletDevice"`
	Name            string    `json:"name"`
	Reading         int       `json:"reading"`
	LimitToOpen     int       `json:"limitToOpen"`
	LimitToClose    int       `json:"limitToClose"`
	IsBlocked       bool      `json:"isBlocked"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (s *SensorStore) Create(ctx context.Context, sn *models.Sensor) error {
	switch sn.Kind {
	case models.KindAir:
		m := models.AirSensor{
			AccessCode: sn.AccessCode, Name: sn.Name, Aqi: sn.Reading,
			AqiLimitToOpen: sn.LimitToOpen, AqiLimitToClose: sn.LimitToClose,
			IsBlocked: sn.IsBlocked, GroupID: sn.GroupID, UpdatedAt: sn.UpdatedAt,
		}
		if err := s.q(ctx).Omit("Group").Create(&m).Error; err != nil {
			return mapErr(err, "")
		}
		sn.ID = m.ID
	case models.KindTemp:
		m := models.TempSensor{
			AccessCode: sn.AccessCode, Name: sn.Name, Kelvins: sn.Reading,
			KelvinLimitToOpen: sn.LimitToOpen, KelvinLimitToClose: sn.LimitToClose,
			IsBlocked: sn.IsBlocked, GroupID: sn.GroupID, UpdatedAt: sn.UpdatedAt,
		}
		if err := s.q(ctx).Omit("Group").Create(&m).Error; err != nil {
			return mapErr(err, "")
		}
		sn.ID = m.ID
	default:
		return fmt.Errorf("not a sensor kind: %q", sn.Kind)
	}
	return nil
}

func (s *SensorStore) Get(ctx context.Context, kind models.DeviceKind, id uint) (*models.Sensor, error) {
	return s.get(ctx, kind, "id = ?", id)
}

// InGroup: датчик, принадлежащий группе; иначе NotFound.
func (s *SensorStore) InGroup(ctx context.Context, kind models.DeviceKind, id, groupID uint) (*models.Sensor, error) {
	return s.get(ctx, kind, "id = ? AND group_id = ?", id, groupID)
}

func (s *SensorStore) get(ctx context.Context, kind models.DeviceKind, cond string, args ...any) (*models.Sensor, error) {
	switch kind {
	case models.KindAir:
		var m models.AirSensor
		if err := s.one(ctx).Where(cond, args...).First(&m).Error; err != nil {
			return nil, mapErr(err, "sensor not found")
		}
		return m.AsSensor(), nil
	case models.KindTemp:
		var m models.TempSensor
		if err := s.one(ctx).Where(cond, args...).First(&m).Error; err != nil {
			return nil, mapErr(err, "sensor not found")
		}
		return m.AsSensor(), nil
	}
	return nil, fmt.Errorf("not a sensor kind: %q", kind)
}

func (s *SensorStore) update(ctx context.Context, kind models.DeviceKind, id uint, fields map[string]any) error {
	t, err := table(kind)
	if err != nil {
		return err
	}
	return mapErr(s.q(ctx).Model(t.model()).Where("id = ?", id).Updates(fields).Error, "sensor not found")
}

// SetDevice записывает обратную ссылку датчик -> клапан.
func (s *SensorStore) SetDevice(ctx context.Context, kind models.DeviceKind, id uint, deviceID *uint, now time.Time) error {
	return s.update(ctx, kind, id, map[string]any{"inlet_device_id": deviceID, "updated_at": now})
}

func (s *SensorStore) SetGroup(ctx context.Context, kind models.DeviceKind, id uint, groupID *uint, now time.Time) error {
	return s.update(ctx, kind, id, map[string]any{"group_id": groupID, "updated_at": now})
}

func (s *SensorStore) SetName(ctx context.Context, kind models.DeviceKind, id uint, name string, now time.Time) error {
	return s.update(ctx, kind, id, map[string]any{"name": name, "updated_at": now})
}

func (s *SensorStore) SetBlocked(ctx context.Context, kind models.DeviceKind, id uint, blocked bool, now time.Time) error {
	return s.update(ctx, kind, id, map[string]any{"is_blocked": blocked, "updated_at": now})
}

func (s *SensorStore) SetReading(ctx context.Context, kind models.DeviceKind, id uint, value int, now time.Time) error {
	t, err := table(kind)
	if err != nil {
		return err
	}
	return s.update(ctx, kind, id, map[string]any{t.reading: value, "updated_at": now})
}

func (s *SensorStore) SetLimits(ctx context.Context, kind models.DeviceKind, id uint, toOpen, toClose int, now time.Time) error {
	t, err := table(kind)
	if err != nil {
		return err
	}
	return s.update(ctx, kind, id, map[string]any{t.open: toOpen, t.close: toClose, "updated_at": now})
}

func (s *SensorStore) Delete(ctx context.Context, kind models.DeviceKind, id uint) error {
	t, err := table(kind)
	if err != nil {
		return err
	}
	return mapErr(s.q(ctx).Where("id = ?", id).Delete(t.model()).Error, "sensor not found")
}

func (s *SensorStore) IDsInGroup(ctx context.Context, kind models.DeviceKind, groupID uint) ([]uint, error) {
	t, err := table(kind)
	if err != nil {
		return nil, err
	}
	var ids []uint
	err = s.q(ctx).Model(t.model()).Where("group_id = ?", groupID).Order("id").Pluck("id", &ids).Error
	return ids, err
}

func (s *SensorStore) View(ctx context.Context, kind models.DeviceKind, id uint) (*SensorView, error) {
	q, err := s.views(ctx, kind)
	if err != nil {
		return nil, err
	}
	var v SensorView
	if err := q.Where("s.id = ?", id).Take(&v).Error; err != nil {
		return nil, mapErr(err, "sensor not found")
	}
	return &v, nil
}

// List: датчики группы (groupID=nil — все) с поиском по имени.
func (s *SensorStore) List(ctx context.Context, kind models.DeviceKind, groupID *uint, query string, p paging.Page) ([]SensorView, int64, error) {
	t, err := table(kind)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	cq := contains(s.q(ctx).Model(t.model()), "name", query)
	if groupID != nil {
		cq = cq.Where("group_id = ?", *groupID)
	}
	if err := cq.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	q, _ := s.views(ctx, kind)
	q = contains(q, "s.name", query)
	if groupID != nil {
		q = q.Where("s.group_id = ?", *groupID)
	}
	var out []SensorView
	err = q.Order("s.id").Scopes(p.Scope).Scan(&out).Error
	return out, total, err
}

func (s *SensorStore) views(ctx context.Context, kind models.DeviceKind) (*gorm.DB, error) {
	t, err := table(kind)
	if err != nil {
		return nil, err
	}
	return s.q(ctx).Table(t.name + " AS s").
		Select("s.id AS id, g.name AS group_name, s.inlet_device_id AS inlet_device_id, d.name AS inlet_device_name, " +
			"s.name AS name, s." + t.reading + " AS reading, s." + t.open + " AS limit_to_open, s." + t.close + " AS limit_to_close, " +
			"s.is_blocked AS is_blocked, s.updated_at AS updated_at").
		Joins("LEFT JOIN user_groups g ON g.id = s.group_id").
		Joins("LEFT JOIN inlet_devices d ON d.id = s.inlet_device_id"), nil
}
