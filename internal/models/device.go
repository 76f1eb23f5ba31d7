package models

import (
	"fmt"
	"time"
)

// Значения по умолчанию при регистрации устройства администратором.
const (
	DefaultInletName = "new inlet device"
	DefaultAirName   = "new air sensor"
	DefaultTempName  = "new temp sensor"

	DefaultAqi           = 10
	DefaultAqiToOpen     = 100
	DefaultAqiToClose    = 66
	DefaultKelvins       = 10
	DefaultKelvinToOpen  = 303
	DefaultKelvinToClose = 273
)

type InletDevice struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	AccessCode  string      `gorm:"size:255;not null" json:"-"`
	Name        string      `gorm:"size:50;not null" json:"name"`
	ControlType ControlType `gorm:"size:16;not null" json:"controlType"`
	IsOpened    bool        `gorm:"not null" json:"isOpened"`
	IsBlocked   bool        `gorm:"not null" json:"isBlocked"`
	UpdatedAt   time.Time   `json:"updatedAt"`

	GroupID      *uint       `gorm:"index" json:"-"`
	Group        *Group      `gorm:"foreignKey:GroupID;constraint:OnDelete:SET NULL" json:"-"`
	AirSensorID  *uint       `gorm:"uniqueIndex" json:"airSensorId"`
	AirSensor    *AirSensor  `gorm:"foreignKey:AirSensorID;constraint:OnDelete:SET NULL" json:"-"`
	TempSensorID *uint       `gorm:"uniqueIndex" json:"tempSensorId"`
	TempSensor   *TempSensor `gorm:"foreignKey:TempSensorID;constraint:OnDelete:SET NULL" json:"-"`
}

// SensorID возвращает id привязанного датчика указанного вида.
func (d *InletDevice) SensorID(kind DeviceKind) *uint {
	switch kind {
	case KindAir:
		return d.AirSensorID
	case KindTemp:
		return d.TempSensorID
	}
	return nil
}

// CheckBinding проверяет соответствие режима и ссылок на датчики.
func (d *InletDevice) CheckBinding() error {
	air, temp := d.AirSensorID != nil, d.TempSensorID != nil
	switch d.ControlType {
	case ControlManual:
		if air || temp {
			return fmt.Errorf("inlet %d: manual with sensor bound", d.ID)
		}
	case ControlAir:
		if !air || temp {
			return fmt.Errorf("inlet %d: air mode needs exactly the air sensor", d.ID)
		}
	case ControlTemp:
		if !temp || air {
			return fmt.Errorf("inlet %d: temp mode needs exactly the temp sensor", d.ID)
		}
	default:
		return fmt.Errorf("inlet %d: unknown control type %q", d.ID, d.ControlType)
	}
	return nil
}

type AirSensor struct {
	ID              uint      `gorm:"primaryKey"`
	AccessCode      string    `gorm:"size:255;not null"`
	Name            string    `gorm:"size:50;not null"`
	Aqi             int       `gorm:"not null"`
	AqiLimitToOpen  int       `gorm:"not null"`
	AqiLimitToClose int       `gorm:"not null"`
	IsBlocked       bool      `gorm:"not null"`
	GroupID         *uint     `gorm:"index"`
	Group           *Group    `gorm:"foreignKey:GroupID;constraint:OnDelete:SET NULL"`
	InletDeviceID   *uint     `gorm:"uniqueIndex"`
	UpdatedAt       time.Time
}

type TempSensor struct {
	ID                 uint      `gorm:"primaryKey"`
	AccessCode         string    `gorm:"size:255;not null"`
	Name               string    `gorm:"size:50;not null"`
	Kelvins            int       `gorm:"not null"`
	KelvinLimitToOpen  int       `gorm:"not null"`
	KelvinLimitToClose int       `gorm:"not null"`
	IsBlocked          bool      `gorm:"not null"`
	GroupID            *uint     `gorm:"index"`
	Group              *Group    `gorm:"foreignKey:GroupID;constraint:OnDelete:SET NULL"`
	InletDeviceID      *uint     `gorm:"uniqueIndex"`
	UpdatedAt          time.Time
}

// Sensor: общее представление датчика воздуха или температуры.
type Sensor struct {
	Kind          DeviceKind `json:"kind"`
	ID            uint       `json:"id"`
	AccessCode    string     `json:"-"`
	Name          string     `json:"name"`
	Reading       int        `json:"reading"`
	LimitToOpen   int        `json:"limitToOpen"`
	LimitToClose  int        `json:"limitToClose"`
	IsBlocked     bool       `json:"isBlocked"`
	GroupID       *uint      `json:"-"`
	InletDeviceID *uint      `json:"inletDeviceId"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func (s *AirSensor) AsSensor() *Sensor {
	return &Sensor{
		Kind: KindAir, ID: s.ID, AccessCode: s.AccessCode, Name: s.Name,
		Reading: s.Aqi, LimitToOpen: s.AqiLimitToOpen, LimitToClose: s.AqiLimitToClose,
		IsBlocked: s.IsBlocked, GroupID: s.GroupID, InletDeviceID: s.InletDeviceID,
		UpdatedAt: s.UpdatedAt,
	}
}

func (s *TempSensor) AsSensor() *Sensor {
	return &Sensor{
		Kind: KindTemp, ID: s.ID, AccessCode: s.AccessCode, Name: s.Name,
		Reading: s.Kelvins, LimitToOpen: s.KelvinLimitToOpen, LimitToClose: s.KelvinLimitToClose,
		IsBlocked: s.IsBlocked, GroupID: s.GroupID, InletDeviceID: s.InletDeviceID,
		UpdatedAt: s.UpdatedAt,
	}
}

// InGroup: принадлежит ли запись группе groupID.
func InGroup(ref *uint, groupID uint) bool { return ref != nil && *ref == groupID }

// All: все модели схемы в порядке зависимостей (для AutoMigrate).
func All() []any {
	return []any{
		&User{},
		&Group{},
		&GroupMember{},
		&JoinOffer{},
		&ActivationToken{},
		&AirSensor{},
		&TempSensor{},
		&InletDevice{},
	}
}
