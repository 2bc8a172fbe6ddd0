package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Template is an authored document blueprint. Authoring lives in an external
// tool; the engine reads templates to seed papers.
type Template struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"size:255;not null" json:"name"`
	Pages     []TemplatePage `gorm:"foreignKey:TemplateID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"pages"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TemplatePage is one ordered page of a template. A page optionally declares a
// chapter structure; pages without one contribute nothing to generated papers.
type TemplatePage struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	TemplateID uint           `gorm:"not null;index" json:"template_id"`
	Name       string         `gorm:"size:255;not null" json:"name"`
	Position   int            `gorm:"not null" json:"position"`
	Structure  datatypes.JSON `gorm:"type:json" json:"-"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// ChapterDef is one chapter declaration inside a page structure. Subsections
// nest without a depth limit.
type ChapterDef struct {
	StructureID string       `json:"id,omitempty"`
	Title       string       `json:"title,omitempty"`
	MinWords    int          `json:"minWords"`
	Subsections []ChapterDef `json:"subsections,omitempty"`
}

// SetStructure serializes the chapter definitions into the JSON storage column.
func (p *TemplatePage) SetStructure(defs []ChapterDef) {
	data, err := json.Marshal(defs)
	if err != nil {
		p.Structure = datatypes.JSON([]byte("[]"))
		return
	}
	p.Structure = datatypes.JSON(data)
}

// StructureDefs deserializes the stored chapter structure. A missing or
// malformed column reads as no structure at all.
func (p TemplatePage) StructureDefs() []ChapterDef {
	if len(p.Structure) == 0 {
		return nil
	}

	var defs []ChapterDef
	if err := json.Unmarshal(p.Structure, &defs); err != nil {
		return nil
	}

	return defs
}
