package descriptor

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// keyDelimiter keeps dotted keys inside technical_specs and meta intact
const keyDelimiter = "::"

// Load reads, defaults and validates the descriptor at path. The format is
// taken from the file extension.
func Load(path string) (*Descriptor, error) {
	return LoadWithDefaults(path, StandardDefaults)
}

// LoadWithDefaults is Load with a custom defaults record
func LoadWithDefaults(path string, defaults Defaults) (*Descriptor, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("descriptor: reading %s: %w", filepath.Base(path), err)
	}
	return decode(v, defaults)
}

// Parse reads a descriptor from r in the given format (yaml, json or toml)
func Parse(r io.Reader, format string) (*Descriptor, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetConfigType(strings.TrimPrefix(strings.ToLower(format), "."))
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("descriptor: parsing %s: %w", format, err)
	}
	return decode(v, StandardDefaults)
}

func decode(v *viper.Viper, defaults Defaults) (*Descriptor, error) {
	var d Descriptor
	if err := v.Unmarshal(&d); err != nil {
		return nil, fmt.Errorf("descriptor: decoding: %w", err)
	}
	d.applyDefaults(defaults)
	if err := Validate(&d); err != nil {
		return nil, err
	}
	return &d, nil
}
