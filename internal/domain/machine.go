package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// Machine is a catalog entry for a concrete piece of gym equipment.
// The catalog is owned by an external collaborator; the identification
// pipeline only reads it. Guide content mirrors the machines table.
type Machine struct {
	ID               string      `gorm:"type:text;primaryKey" json:"id"`
	Name             string      `gorm:"type:text;not null;index:idx_machines_name" json:"name"`
	Category         string      `gorm:"type:text" json:"category"`
	Difficulty       string      `gorm:"type:text;default:beginner" json:"difficulty"`
	PrimaryMuscles   StringArray `gorm:"type:text" json:"primary_muscles"`
	SecondaryMuscles StringArray `gorm:"type:text" json:"secondary_muscles"`
	EquipmentType    string      `gorm:"type:text" json:"equipment_type,omitempty"`

	// Guidance content
	SetupSteps     StringArray `gorm:"type:text" json:"setup_steps"`
	HowToSteps     StringArray `gorm:"type:text" json:"how_to_steps"`
	CommonMistakes StringArray `gorm:"type:text" json:"common_mistakes"`
	SafetyTips     StringArray `gorm:"type:text" json:"safety_tips"`

	// Recognition metadata used to build description embeddings
	Description string      `gorm:"type:text" json:"description"`
	Keywords    StringArray `gorm:"type:text" json:"keywords"`
	Synonyms    StringArray `gorm:"type:text" json:"synonyms"`

	Tags      StringArray `gorm:"type:text" json:"tags"`
	IsActive  bool        `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (Machine) TableName() string {
	return "machines"
}

// EmbeddingText builds the description text embedded for direct
// image-to-catalog similarity. Falls back to the name when no richer
// description is available.
func (m *Machine) EmbeddingText() string {
	if m.Description != "" {
		return m.Description
	}
	text := m.Name
	if m.Category != "" {
		text += ", a " + m.Category + " gym machine"
	}
	return text
}
