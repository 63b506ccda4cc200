package models

import (
	"time"

	"gorm.io/datatypes"
)

// UniversalDeviceID — значение device_id для пульта, не привязанного к устройству.
const UniversalDeviceID = "universal"

type RemoteLayout string

const (
	RemoteLayoutStandard RemoteLayout = "standard"
	RemoteLayoutCompact  RemoteLayout = "compact"
	RemoteLayoutSmart    RemoteLayout = "smart"
	RemoteLayoutCustom   RemoteLayout = "custom"
)

// Remote — раскладка пульта. Инвариант (поддерживается оппортунистически):
// у каждого устройства с пультами ровно один is_default=true.
type Remote struct {
	Base
	DeviceID     string         `gorm:"column:device_id;type:varchar(36);index" json:"device_id"`
	Name         string         `gorm:"type:varchar(255);not null" json:"name"`
	Manufacturer string         `gorm:"type:varchar(255)" json:"manufacturer"`
	Model        string         `gorm:"type:varchar(255)" json:"model"`
	Description  string         `gorm:"type:text" json:"description"`
	Layout       RemoteLayout   `gorm:"type:varchar(16);default:'standard'" json:"layout"`
	ColorScheme  string         `gorm:"column:color_scheme;type:varchar(32)" json:"color_scheme"`
	ImageData    string         `gorm:"column:image_data;type:text" json:"image_data"`
	SVGData      string         `gorm:"column:svg_data;type:text" json:"svg_data"`
	IsDefault    bool           `gorm:"column:is_default;default:false;index" json:"is_default"`
	UsageCount   int            `gorm:"column:usage_count;default:0" json:"usage_count"`
	LastUsed     *time.Time     `gorm:"column:last_used" json:"last_used"`
	Dimensions   datatypes.JSON `gorm:"type:jsonb" json:"dimensions"`
	Buttons      datatypes.JSON `gorm:"type:jsonb" json:"buttons"`
	Zones        datatypes.JSON `gorm:"type:jsonb" json:"zones"`
	Metadata     datatypes.JSON `gorm:"type:jsonb" json:"metadata"`
}

// RemoteView — пульт с разобранными JSON-колонками для ответа API.
type RemoteView struct {
	Remote
	DimensionsParsed map[string]any   `json:"dimensions_parsed"`
	ButtonsParsed    []map[string]any `json:"buttons_parsed"`
	ZonesParsed      []map[string]any `json:"zones_parsed"`
	MetadataParsed   map[string]any   `json:"metadata_parsed"`
}

// RemoteUsage — строка статистики использования пульта.
type RemoteUsage struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	DeviceID   string     `gorm:"column:device_id" json:"device_id"`
	UsageCount int        `gorm:"column:usage_count" json:"usage_count"`
	LastUsed   *time.Time `gorm:"column:last_used" json:"last_used"`
}
