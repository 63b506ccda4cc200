package models

type DeviceStatus string

const (
	DeviceStatusActive      DeviceStatus = "active"
	DeviceStatusMaintenance DeviceStatus = "maintenance"
	DeviceStatusInactive    DeviceStatus = "inactive"
)

// Device — модель ТВ-приставки. Владеет проблемами и пультами.
type Device struct {
	Base
	Name        string       `gorm:"type:varchar(255);not null" json:"name"`
	Brand       string       `gorm:"type:varchar(255)" json:"brand"`
	Model       string       `gorm:"type:varchar(255)" json:"model"`
	Description string       `gorm:"type:text" json:"description"`
	ImageURL    string       `gorm:"column:image_url;type:text" json:"image_url"`
	LogoURL     string       `gorm:"column:logo_url;type:text" json:"logo_url"`
	Color       string       `gorm:"type:varchar(32)" json:"color"`
	OrderIndex  int          `gorm:"default:0;index" json:"order_index"`
	Status      DeviceStatus `gorm:"type:varchar(16);default:'active';index" json:"status"`
}

// DeviceWithStats — строка списка устройств с числом проблем/пультов.
type DeviceWithStats struct {
	Device
	ProblemsCount int `gorm:"column:problems_count" json:"problems_count"`
	RemotesCount  int `gorm:"column:remotes_count" json:"remotes_count"`
}

// DeviceStats — агрегат по статусам устройств.
type DeviceStats struct {
	TotalDevices       int64 `json:"total_devices"`
	ActiveDevices      int64 `json:"active_devices"`
	MaintenanceDevices int64 `json:"maintenance_devices"`
	InactiveDevices    int64 `json:"inactive_devices"`
}
