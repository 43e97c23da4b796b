package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Metadata represents a flexible key-value store for additional data, stored as JSON in the database.
// It implements the sql.Scanner and driver.Valuer interfaces to handle database serialization.
type Metadata map[string]any

// Scan implements the sql.Scanner interface, allowing Metadata to be read from the database.
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = make(Metadata)
		return nil
	}

	switch v := value.(type) {
	case []byte:
		json.Unmarshal(v, &m)
		return nil
	case string:
		json.Unmarshal([]byte(v), &m)
		return nil
	default:
		return fmt.Errorf("unsupported type %T", v)
	}
}

// Value implements the driver.Valuer interface, allowing Metadata to be written to the database.
func (m Metadata) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	return json.Marshal(m)
}

// StringList is a list of strings stored as a JSON array in the database.
// It implements the sql.Scanner and driver.Valuer interfaces to handle database serialization.
type StringList []string

// Scan implements the sql.Scanner interface, allowing StringList to be read from the database.
func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = StringList{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		json.Unmarshal(v, &s)
		return nil
	case string:
		json.Unmarshal([]byte(v), &s)
		return nil
	default:
		return fmt.Errorf("unsupported type %T", v)
	}
}

// Value implements the driver.Valuer interface, allowing StringList to be written to the database.
func (s StringList) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	return json.Marshal(s)
}

// BoolMap is a map of feature flags stored as a JSON object in the database.
// It implements the sql.Scanner and driver.Valuer interfaces to handle database serialization.
type BoolMap map[string]bool

// Scan implements the sql.Scanner interface, allowing BoolMap to be read from the database.
func (b *BoolMap) Scan(value interface{}) error {
	if value == nil {
		*b = make(BoolMap)
		return nil
	}

	switch v := value.(type) {
	case []byte:
		json.Unmarshal(v, &b)
		return nil
	case string:
		json.Unmarshal([]byte(v), &b)
		return nil
	default:
		return fmt.Errorf("unsupported type %T", v)
	}
}

// Value implements the driver.Valuer interface, allowing BoolMap to be written to the database.
func (b BoolMap) Value() (driver.Value, error) {
	if len(b) == 0 {
		return "{}", nil
	}
	return json.Marshal(b)
}

// IntMap is a map of weekday numbers to values stored as a JSON object in the database.
// JSON object keys are strings, so the map is flattened to string keys on write
// and parsed back to ints on read.
type IntMap map[int]string

// Scan implements the sql.Scanner interface, allowing IntMap to be read from the database.
func (m *IntMap) Scan(value interface{}) error {
	if value == nil {
		*m = make(IntMap)
		return nil
	}

	var raw map[string]string
	switch v := value.(type) {
	case []byte:
		if err := json.Unmarshal(v, &raw); err != nil {
			return fmt.Errorf("unmarshalling int map : %w", err)
		}
	case string:
		if err := json.Unmarshal([]byte(v), &raw); err != nil {
			return fmt.Errorf("unmarshalling int map : %w", err)
		}
	default:
		return fmt.Errorf("unsupported type %T", v)
	}

	result := make(IntMap, len(raw))
	for key, val := range raw {
		var day int
		if _, err := fmt.Sscanf(key, "%d", &day); err != nil {
			return fmt.Errorf("parsing int map key %q : %w", key, err)
		}
		result[day] = val
	}
	*m = result
	return nil
}

// Value implements the driver.Valuer interface, allowing IntMap to be written to the database.
func (m IntMap) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	raw := make(map[string]string, len(m))
	for key, val := range m {
		raw[fmt.Sprintf("%d", key)] = val
	}
	return json.Marshal(raw)
}

// UUIDList is a list of UUIDs stored as a JSON array of strings in the database.
// It implements the sql.Scanner and driver.Valuer interfaces to handle database serialization.
type UUIDList []uuid.UUID

// Scan implements the sql.Scanner interface, allowing UUIDList to be read from the database.
func (u *UUIDList) Scan(value interface{}) error {
	if value == nil {
		*u = UUIDList{}
		return nil
	}

	var raw []string
	switch v := value.(type) {
	case []byte:
		if err := json.Unmarshal(v, &raw); err != nil {
			return fmt.Errorf("unmarshalling uuid list : %w", err)
		}
	case string:
		if err := json.Unmarshal([]byte(v), &raw); err != nil {
			return fmt.Errorf("unmarshalling uuid list : %w", err)
		}
	default:
		return fmt.Errorf("unsupported type %T", v)
	}

	result := make(UUIDList, 0, len(raw))
	for _, entry := range raw {
		id, err := uuid.Parse(entry)
		if err != nil {
			return fmt.Errorf("parsing uuid %q : %w", entry, err)
		}
		result = append(result, id)
	}
	*u = result
	return nil
}

// Value implements the driver.Valuer interface, allowing UUIDList to be written to the database.
func (u UUIDList) Value() (driver.Value, error) {
	if len(u) == 0 {
		return "[]", nil
	}
	raw := make([]string, len(u))
	for i, id := range u {
		raw[i] = id.String()
	}
	return json.Marshal(raw)
}
