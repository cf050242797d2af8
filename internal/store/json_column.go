package store

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/Laisky/errors/v2"
)

// JSONColumn stores a JSON object in a single text/blob column, grounded on
// the teacher's JSONStringSlice/JSONStringMap driver.Valuer/sql.Scanner pair
// in model/mcp_types.go, generalized to the gateway's free-form config and
// request_metadata columns (format_acceptance_config, body_rules,
// extra_headers, config, request_metadata). List-shaped columns
// (api_formats, video_urls) use JSONList instead.
type JSONColumn map[string]any

// Value converts the JSONColumn into a driver value.
func (c JSONColumn) Value() (driver.Value, error) {
	if len(c) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(map[string]any(c))
	if err != nil {
		return nil, errors.Wrap(err, "marshal json column")
	}
	return string(payload), nil
}

// Scan populates the JSONColumn from a database value.
func (c *JSONColumn) Scan(value any) error {
	if c == nil {
		return errors.New("json column scan: nil receiver")
	}
	if value == nil {
		*c = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("json column scan: unsupported type %T", value)
	}

	if len(data) == 0 {
		*c = nil
		return nil
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return errors.Wrap(err, "unmarshal json column")
	}
	*c = decoded
	return nil
}

// JSONList is JSONColumn's array-shaped sibling, used for api_formats,
// video_urls and other list-typed JSON columns.
type JSONList []any

// Value converts the JSONList into a driver value.
func (l JSONList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal([]any(l))
	if err != nil {
		return nil, errors.Wrap(err, "marshal json list")
	}
	return string(payload), nil
}

// Scan populates the JSONList from a database value.
func (l *JSONList) Scan(value any) error {
	if l == nil {
		return errors.New("json list scan: nil receiver")
	}
	if value == nil {
		*l = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("json list scan: unsupported type %T", value)
	}

	if len(data) == 0 {
		*l = nil
		return nil
	}

	var decoded []any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return errors.Wrap(err, "unmarshal json list")
	}
	*l = decoded
	return nil
}
