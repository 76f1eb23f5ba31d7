package models

// DeviceKind: вид физического устройства: клапан или один из датчиков.
type DeviceKind string

const (
	KindInlet DeviceKind = "inlet"
	KindAir   DeviceKind = "air"
	KindTemp  DeviceKind = "temp"
)

// ParseDeviceKind разбирает "inlet" | "air" | "temp".
func ParseDeviceKind(s string) (DeviceKind, bool) {
	switch k := DeviceKind(s); k {
	case KindInlet, KindAir, KindTemp:
		return k, true
	}
	return "", false
}

func (k DeviceKind) IsSensor() bool { return k == KindAir || k == KindTemp }

// Control: режим управления, который задаёт датчик этого вида.
func (k DeviceKind) Control() ControlType {
	switch k {
	case KindAir:
		return ControlAir
	case KindTemp:
		return ControlTemp
	}
	return ControlManual
}

// ControlType: что управляет открытием клапана.
type ControlType string

const (
	ControlManual ControlType = "manual"
	ControlAir    ControlType = "air"
	ControlTemp   ControlType = "temp"
)

func ParseControlType(s string) (ControlType, bool) {
	switch c := ControlType(s); c {
	case ControlManual, ControlAir, ControlTemp:
		return c, true
	}
	return "", false
}

// SensorKind: вид датчика, который требуется для режима (для manual — false).
func (c ControlType) SensorKind() (DeviceKind, bool) {
	switch c {
	case ControlAir:
		return KindAir, true
	case ControlTemp:
		return KindTemp, true
	}
	return "", false
}
