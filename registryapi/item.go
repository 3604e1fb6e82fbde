package registryapi

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/xbusio/xbus-go/xbuserr"
)

// Item is one fetched configuration value (spec §1(a), SUPPLEMENTED
// FEATURES). Value is the raw string the registry stored; JSON and YAML
// decode it into a caller-supplied type, mirroring
// original_source/src/client.rs's Item::json/Item::yaml.
type Item struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Version int64  `json:"version"`
}

// JSON decodes the item's value as JSON into v.
func (i Item) JSON(v interface{}) error {
	if err := json.Unmarshal([]byte(i.Value), v); err != nil {
		return xbuserr.Serialization(err)
	}
	return nil
}

// YAML decodes the item's value as YAML into v.
func (i Item) YAML(v interface{}) error {
	if err := yaml.Unmarshal([]byte(i.Value), v); err != nil {
		return xbuserr.Serialization(err)
	}
	return nil
}
