package db

import "gorm.io/gorm"

// Capabilities — дескриптор фактической схемы: какие опциональные колонки
// существуют. Разрешается один раз на старте через мигратор и внедряется в
// сторы конфигурацией — вместо запроса information_schema на каждый вызов.
type Capabilities struct {
	// tv_interfaces
	InterfaceClickableAreas bool
	InterfaceHighlightAreas bool

	// tv_interface_marks: базовый набор колонок гарантирован, остальное
	// зависит от того, докатились ли миграции.
	MarkType         bool
	MarkShape        bool
	MarkSize         bool
	MarkIsActive     bool
	MarkIsVisible    bool
	MarkDisplayOrder bool
	MarkMetadata     bool
	MarkTags         bool
	MarkStepID       bool
}

// ResolveCapabilities снимает слепок наличия опциональных колонок.
func ResolveCapabilities(db *gorm.DB) Capabilities {
	if db == nil {
		return FullCapabilities()
	}
	m := db.Migrator()
	c := Capabilities{}
	if m.HasTable("tv_interfaces") {
		c.InterfaceClickableAreas = m.HasColumn("tv_interfaces", "clickable_areas")
		c.InterfaceHighlightAreas = m.HasColumn("tv_interfaces", "highlight_areas")
	}
	if m.HasTable("tv_interface_marks") {
		c.MarkType = m.HasColumn("tv_interface_marks", "mark_type")
		c.MarkShape = m.HasColumn("tv_interface_marks", "shape")
		c.MarkSize = m.HasColumn("tv_interface_marks", "size")
		c.MarkIsActive = m.HasColumn("tv_interface_marks", "is_active")
		c.MarkIsVisible = m.HasColumn("tv_interface_marks", "is_visible")
		c.MarkDisplayOrder = m.HasColumn("tv_interface_marks", "display_order")
		c.MarkMetadata = m.HasColumn("tv_interface_marks", "metadata")
		c.MarkTags = m.HasColumn("tv_interface_marks", "tags")
		c.MarkStepID = m.HasColumn("tv_interface_marks", "step_id")
	}
	return c
}

// FullCapabilities — все опциональные колонки на месте (свежая схема).
func FullCapabilities() Capabilities {
	return Capabilities{
		InterfaceClickableAreas: true,
		InterfaceHighlightAreas: true,
		MarkType:                true,
		MarkShape:               true,
		MarkSize:                true,
		MarkIsActive:            true,
		MarkIsVisible:           true,
		MarkDisplayOrder:        true,
		MarkMetadata:            true,
		MarkTags:                true,
		MarkStepID:              true,
	}
}
