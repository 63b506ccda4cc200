package models

import "gorm.io/datatypes"

type TVInterfaceType string

const (
	TVInterfaceHome     TVInterfaceType = "home"
	TVInterfaceSettings TVInterfaceType = "settings"
	TVInterfaceChannels TVInterfaceType = "channels"
	TVInterfaceApps     TVInterfaceType = "apps"
	TVInterfaceGuide    TVInterfaceType = "guide"
	TVInterfaceNoSignal TVInterfaceType = "no-signal"
	TVInterfaceError    TVInterfaceType = "error"
	TVInterfaceCustom   TVInterfaceType = "custom"
)

// TVInterface — скриншот экрана приставки с размеченными областями.
// clickable_areas/highlight_areas — опциональные колонки (миграции могут
// отставать), их наличие решает db.Capabilities.
type TVInterface struct {
	Base
	DeviceID       string          `gorm:"column:device_id;type:char(36);index;not null" json:"device_id"`
	Name           string          `gorm:"type:varchar(255);not null" json:"name"`
	Description    string          `gorm:"type:text" json:"description"`
	Type           TVInterfaceType `gorm:"type:varchar(16);default:'custom';index" json:"type"`
	ScreenshotURL  string          `gorm:"column:screenshot_url;type:text" json:"screenshot_url"`
	ScreenshotData string          `gorm:"column:screenshot_data;type:text" json:"screenshot_data"`
	ClickableAreas datatypes.JSON  `gorm:"column:clickable_areas;type:jsonb" json:"clickable_areas"`
	HighlightAreas datatypes.JSON  `gorm:"column:highlight_areas;type:jsonb" json:"highlight_areas"`
}

// TVInterfaceListItem — строка списка: тяжёлый screenshot_data может быть
// опущен, тогда has_screenshot_data и screenshot_data_size говорят о нём.
type TVInterfaceListItem struct {
	TVInterface
	ScreenshotDataSize int  `gorm:"column:screenshot_data_size" json:"screenshot_data_size"`
	HasScreenshotData  bool `gorm:"column:has_screenshot_data" json:"has_screenshot_data"`
}

// TVInterfaceStats — агрегат по интерфейсам.
type TVInterfaceStats struct {
	Total      int64            `json:"total"`
	Active     int64            `json:"active"`
	ByType     map[string]int64 `json:"by_type"`
	Oversized  int64            `json:"oversized"`
	WithMarks  int64            `json:"with_marks"`
	TotalMarks int64            `json:"total_marks"`
}

type MarkType string

const (
	MarkTypePoint MarkType = "point"
	MarkTypeZone  MarkType = "zone"
	MarkTypeArea  MarkType = "area"
)

type MarkShape string

const (
	MarkShapeCircle    MarkShape = "circle"
	MarkShapeRectangle MarkShape = "rectangle"
	MarkShapePolygon   MarkShape = "polygon"
	MarkShapeEllipse   MarkShape = "ellipse"
)

// TVInterfaceMark — позиционированная аннотация поверх скриншота, опционально
// привязанная к шагу диагностики. Часть колонок опциональна (см. db.Capabilities).
type TVInterfaceMark struct {
	Base
	TVInterfaceID     string         `gorm:"column:tv_interface_id;type:char(36);index;not null" json:"tv_interface_id"`
	StepID            string         `gorm:"column:step_id;type:char(36);index" json:"step_id"`
	Name              string         `gorm:"type:varchar(255);not null" json:"name"`
	Description       string         `gorm:"type:text" json:"description"`
	MarkType          MarkType       `gorm:"column:mark_type;type:varchar(16);default:'point'" json:"mark_type"`
	Shape             MarkShape      `gorm:"type:varchar(16);default:'circle'" json:"shape"`
	Position          datatypes.JSON `gorm:"type:jsonb" json:"position"`
	Size              datatypes.JSON `gorm:"type:jsonb" json:"size"`
	Coordinates       datatypes.JSON `gorm:"type:jsonb" json:"coordinates"`
	Color             string         `gorm:"type:varchar(32)" json:"color"`
	BackgroundColor   string         `gorm:"column:background_color;type:varchar(32)" json:"background_color"`
	BorderColor       string         `gorm:"column:border_color;type:varchar(32)" json:"border_color"`
	BorderWidth       int            `gorm:"column:border_width;default:2" json:"border_width"`
	Opacity           float64        `gorm:"default:0.8" json:"opacity"`
	IsClickable       bool           `gorm:"column:is_clickable;default:false" json:"is_clickable"`
	IsHighlightable   bool           `gorm:"column:is_highlightable;default:false" json:"is_highlightable"`
	ClickAction       string         `gorm:"column:click_action;type:varchar(64)" json:"click_action"`
	HoverAction       string         `gorm:"column:hover_action;type:varchar(64)" json:"hover_action"`
	ActionValue       string         `gorm:"column:action_value;type:text" json:"action_value"`
	ActionDescription string         `gorm:"column:action_description;type:text" json:"action_description"`
	ExpectedResult    string         `gorm:"column:expected_result;type:text" json:"expected_result"`
	HintText          string         `gorm:"column:hint_text;type:text" json:"hint_text"`
	AnimationType     string         `gorm:"column:animation_type;type:varchar(32)" json:"animation_type"`
	AnimationDuration int            `gorm:"column:animation_duration;default:0" json:"animation_duration"`
	DisplayOrder      int            `gorm:"column:display_order;default:0;index" json:"display_order"`
	Priority          string         `gorm:"type:varchar(16);default:'normal'" json:"priority"`
	IsVisible         bool           `gorm:"column:is_visible;default:true" json:"is_visible"`
	Metadata          datatypes.JSON `gorm:"type:jsonb" json:"metadata"`
	Tags              datatypes.JSON `gorm:"type:jsonb" json:"tags"`
}

func (TVInterfaceMark) TableName() string { return "tv_interface_marks" }

// MarkStats — агрегат по отметкам интерфейса; часть полей считается только
// при наличии соответствующих колонок.
type MarkStats struct {
	Total     int64            `json:"total"`
	Visible   int64            `json:"visible"`
	Clickable int64            `json:"clickable"`
	ByType    map[string]int64 `json:"by_type"`
	ByShape   map[string]int64 `json:"by_shape"`
}
