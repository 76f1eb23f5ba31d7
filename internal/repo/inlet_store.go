package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"smartinlet/internal/models"
	"smartinlet/internal/paging"
)

// InletStore: клапаны. Колонки привязок меняются только через SetControl.
type InletStore struct{ base }

// InletView: клапан с именами группы и датчиков.
type InletView struct {
	ID             uint               `json:"id"`
	GroupName      *string            `json:"group"`
	AirSensorID    *uint              `json:"airSensorId"`
	AirSensorName  *string            `json:"airSensor"`
	TempSensorID   *uint              `json:"tempSensorId"`
	TempSensorName *string            `json:"tempSensor"`
	Name           string             `json:"name"`
	ControlType    models.ControlType `json:"controlType"`
	IsOpened       bool               `json:"isOpened"`
	IsBlocked      bool               `json:"isBlocked"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

func (s *InletStore) Create(ctx context.Context, d *models.InletDevice) error {
	return mapErr(s.q(ctx).Omit("Group", "AirSensor", "TempSensor").Create(d).Error, "")
}

func (s *InletStore) Get(ctx context.Context, id uint) (*models.InletDevice, error) {
	var d models.InletDevice
	if err := s.one(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, mapErr(err, "device not found")
	}
	return &d, nil
}

// InGroup: клапан, принадлежащий группе; иначе NotFound.
func (s *InletStore) InGroup(ctx context.Context, id, groupID uint) (*models.InletDevice, error) {
	var d models.InletDevice
	if err := s.one(ctx).Where("id = ? AND group_id = ?", id, groupID).First(&d).Error; err != nil {
		return nil, mapErr(err, "device not found")
	}
	return &d, nil
}

func (s *InletStore) Update(ctx context.Context, id uint, fields map[string]any) error {
	return mapErr(s.q(ctx).Model(&models.InletDevice{}).Where("id = ?", id).Updates(fields).Error, "device not found")
}

// SetControl записывает режим и обе ссылки на датчики одним UPDATE.
func (s *InletStore) SetControl(ctx context.Context, id uint, ct models.ControlType, airID, tempID *uint, now time.Time) error {
	return s.Update(ctx, id, map[string]any{
		"control_type":   ct,
		"air_sensor_id":  airID,
		"temp_sensor_id": tempID,
		"updated_at":     now,
	})
}

func (s *InletStore) Delete(ctx context.Context, id uint) error {
	return mapErr(s.q(ctx).Where("id = ?", id).Delete(&models.InletDevice{}).Error, "device not found")
}

// IDsInGroup: id всех клапанов группы.
func (s *InletStore) IDsInGroup(ctx context.Context, groupID uint) ([]uint, error) {
	var ids []uint
	err := s.q(ctx).Model(&models.InletDevice{}).Where("group_id = ?", groupID).Order("id").Pluck("id", &ids).Error
	return ids, err
}

func (s *InletStore) View(ctx context.Context, id uint) (*InletView, error) {
	var v InletView
	if err := s.views(ctx).Where("d.id = ?", id).Take(&v).Error; err != nil {
		return nil, mapErr(err, "device not found")
	}
	return &v, nil
}

// List: клапаны группы (groupID=nil — все, для администратора) с поиском по имени.
func (s *InletStore) List(ctx context.Context, groupID *uint, query string, p paging.Page) ([]InletView, int64, error) {
	var total int64
	cq := contains(s.q(ctx).Model(&models.InletDevice{}), "name", query)
	if groupID != nil {
		cq = cq.Where("group_id = ?", *groupID)
	}
	if err := cq.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	q := contains(s.views(ctx), "d.name", query)
	if groupID != nil {
		q = q.Where("d.group_id = ?", *groupID)
	}
	var out []InletView
	err := q.Order("d.id").Scopes(p.Scope).Scan(&out).Error
	return out, total, err
}

func (s *InletStore) views(ctx context.Context) *gorm.DB {
	return s.q(ctx).Table("inlet_devices AS d").
		Select("d.id AS id, g.name AS group_name, d.air_sensor_id AS air_sensor_id, a.name AS air_sensor_name, " +
			"d.temp_sensor_id AS temp_sensor_id, t.name AS temp_sensor_name, d.name AS name, d.control_type AS control_type, " +
			"d.is_opened AS is_opened, d.is_blocked AS is_blocked, d.updated_at AS updated_at").
		Joins("LEFT JOIN user_groups g ON g.id = d.group_id").
		Joins("LEFT JOIN air_sensors a ON a.id = d.air_sensor_id").
		Joins("LEFT JOIN temp_sensors t ON t.id = d.temp_sensor_id")
}
