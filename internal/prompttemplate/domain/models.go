package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Type string

const (
	TypeLyrics          Type = "lyrics"
	TypeMoodDescription Type = "mood_description"
	TypeMusic           Type = "music"
)

// RequiredTypes are the template kinds the generation pipeline renders.
var RequiredTypes = []Type{TypeLyrics, TypeMoodDescription, TypeMusic}

func (t Type) Valid() bool {
	switch t {
	case TypeLyrics, TypeMoodDescription, TypeMusic:
		return true
	}
	return false
}

// Template is one version of a prompt. At most one version per type is active.
type Template struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Type         Type         `gorm:"type:varchar(32);not null;uniqueIndex:ux_prompt_templates_type_version,priority:1;index:idx_prompt_templates_active,priority:1" json:"type"`
	Version      int          `gorm:"not null;uniqueIndex:ux_prompt_templates_type_version,priority:2" json:"version"`
	Body         string       `gorm:"type:text;not null" json:"body"`
	SystemPrompt string       `gorm:"type:text" json:"system_prompt,omitempty"`
	IsActive     bool         `gorm:"not null;default:false;index:idx_prompt_templates_active,priority:2" json:"is_active"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
}

func (Template) TableName() string { return "prompt_templates" }

// ActiveSet holds the active template per type.
type ActiveSet map[Type]Template

// Missing lists the required types with no active template.
func (s ActiveSet) Missing() []Type {
	var missing []Type
	for _, t := range RequiredTypes {
		if _, ok := s[t]; !ok {
			missing = append(missing, t)
		}
	}
	return missing
}
