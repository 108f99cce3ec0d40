package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// redacted replaces secret values in dumps.
const redacted = "****"

// tomlParser implements koanf.Parser for TOML config files.
type tomlParser struct{}

// TOMLParser returns a koanf parser for TOML documents.
func TOMLParser() *tomlParser {
	return &tomlParser{}
}

// Unmarshal parses TOML bytes into a nested map.
func (p *tomlParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := toml.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Marshal renders a nested map as TOML.
func (p *tomlParser) Marshal(o map[string]interface{}) ([]byte, error) {
	return toml.Marshal(o)
}

// Dump writes cfg to w as yaml, json or toml. Durations are written in
// their string form and secrets are masked.
func Dump(cfg *Config, w io.Writer, format string) error {
	if cfg == nil {
		return errors.New("config: nil config")
	}
	tree := dumpValue(reflect.ValueOf(cfg).Elem())

	switch strings.ToLower(format) {
	case "", "yaml", "yml":
		enc := yamlv3.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(tree); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tree)
	case "toml":
		return toml.NewEncoder(w).Encode(tree)
	default:
		return fmt.Errorf("config: unsupported dump format %q", format)
	}
}

var durationType = reflect.TypeOf(time.Duration(0))

func dumpValue(v reflect.Value) interface{} {
	if v.Type() == durationType {
		return time.Duration(v.Int()).String()
	}

	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return dumpValue(v.Elem())
	case reflect.Struct:
		out := make(map[string]interface{}, v.NumField())
		typ := v.Type()
		for i := 0; i < v.NumField(); i++ {
			field := typ.Field(i)
			key := field.Tag.Get("mapstructure")
			if !field.IsExported() || key == "" || key == "-" {
				continue
			}
			fv := v.Field(i)
			if field.Tag.Get("redact") == "true" && !fv.IsZero() {
				out[key] = redactValue(fv)
				continue
			}
			out[key] = dumpValue(fv)
		}
		return out
	case reflect.Map:
		out := make(map[string]interface{}, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = dumpValue(iter.Value())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, v.Len())
		for i := range out {
			out[i] = dumpValue(v.Index(i))
		}
		return out
	default:
		return v.Interface()
	}
}

// redactValue masks a secret. Maps keep their keys.
func redactValue(v reflect.Value) interface{} {
	if v.Kind() != reflect.Map {
		return redacted
	}
	out := make(map[string]interface{}, v.Len())
	for _, k := range v.MapKeys() {
		out[fmt.Sprint(k.Interface())] = redacted
	}
	return out
}
