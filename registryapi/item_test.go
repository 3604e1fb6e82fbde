package registryapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemJSON(t *testing.T) {
	item := Item{Name: "k", Value: `{"host":"db.internal","port":5432}`, Version: 1}

	var dst struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	}
	require.NoError(t, item.JSON(&dst))
	assert.Equal(t, "db.internal", dst.Host)
	assert.Equal(t, 5432, dst.Port)
}

func TestItemYAML(t *testing.T) {
	item := Item{Name: "k", Value: "host: db.internal\nport: 5432\n", Version: 1}

	var dst struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	}
	require.NoError(t, item.YAML(&dst))
	assert.Equal(t, "db.internal", dst.Host)
	assert.Equal(t, 5432, dst.Port)
}

func TestItemJSONInvalid(t *testing.T) {
	item := Item{Name: "k", Value: "not json"}
	var dst map[string]interface{}
	require.Error(t, item.JSON(&dst))
}
