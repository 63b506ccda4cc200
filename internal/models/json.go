package models

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// Хелперы разбора JSON-колонок. Данные исторически писались и строками, и
// готовыми объектами, поэтому разбор всегда с безопасным дефолтом: битый
// JSON не должен ронять чтение.

// DecodeObject разбирает JSON-объект; при пустом/битом значении — пустая карта.
func DecodeObject(raw datatypes.JSON) map[string]any {
	out := map[string]any{}
	if len(raw) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		// возможно, объект записан строкой: "{\"a\":1}"
		var s string
		if e2 := json.Unmarshal(raw, &s); e2 == nil {
			inner := map[string]any{}
			if e3 := json.Unmarshal([]byte(s), &inner); e3 == nil {
				return inner
			}
		}
		return map[string]any{}
	}
	return out
}

// DecodeArray разбирает JSON-массив объектов; дефолт — пустой срез.
func DecodeArray(raw datatypes.JSON) []map[string]any {
	out := []map[string]any{}
	if len(raw) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		var s string
		if e2 := json.Unmarshal(raw, &s); e2 == nil {
			inner := []map[string]any{}
			if e3 := json.Unmarshal([]byte(s), &inner); e3 == nil {
				return inner
			}
		}
		return []map[string]any{}
	}
	return out
}

// MarkSize — размер отметки; дефолт 20х20, как рисует редактор.
type MarkSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DecodeMarkSize разбирает size отметки; дефолт {20,20}.
func DecodeMarkSize(raw datatypes.JSON) MarkSize {
	def := MarkSize{Width: 20, Height: 20}
	if len(raw) == 0 {
		return def
	}
	var out MarkSize
	if err := json.Unmarshal(raw, &out); err != nil || out.Width <= 0 || out.Height <= 0 {
		return def
	}
	return out
}

// EncodeJSON сериализует значение в JSON-колонку; nil — в "null".
func EncodeJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}
