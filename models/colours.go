package models

import (
	"database/sql/driver"
	"errors"
	"strings"
)

// SerializableColours is a custom DB extension type that stores
// a string slice as a comma separate value in the database
// Example input: []string{"#020304", "#6581be"}
// Example DB value: #020304,#6581be
type SerializableColours []string

func (s SerializableColours) Value() (driver.Value, error) {
	return strings.Join(s, ","), nil
}

func (s *SerializableColours) Scan(src interface{}) error {
	var source []string
	switch v := src.(type) {
	case string:
		source = splitColours(v)
	case []byte:
		source = splitColours(string(v))
	case nil:
		source = []string{}
	default:
		return errors.New("incompatible type for SerializableColours")
	}
	*s = SerializableColours(source)
	return nil
}

func splitColours(v string) []string {
	if v == "" {
		return []string{}
	}
	return strings.Split(v, ",")
}
