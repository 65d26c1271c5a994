package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cast"
)

const DefaultPrefix = "AIRA"

// LookupFunc resolves a configuration key, os.LookupEnv by default.
type LookupFunc func(key string) (string, bool)

// Load builds a CommenceConfig from environment variables under prefix.
func Load(prefix string) (*CommenceConfig, error) {
	cfg := &CommenceConfig{}
	if err := Fill(cfg, prefix, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Fill populates the struct pointed to by target from `cfg` tags. Nested
// structs join their tag onto the prefix with "_". Missing keys fall back to
// the `default` tag and are otherwise left untouched.
func Fill(target interface{}, prefix string, lookup LookupFunc) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config target must be a pointer to struct, got %T", target)
	}
	return fillStruct(v.Elem(), prefix, lookup)
}

var durationType = reflect.TypeOf(time.Duration(0))

func fillStruct(v reflect.Value, prefix string, lookup LookupFunc) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("cfg")
		if tag == "" || tag == "-" || !field.IsExported() {
			continue
		}
		key := joinKey(prefix, tag)
		fv := v.Field(i)

		if fv.Kind() == reflect.Struct {
			if err := fillStruct(fv, key, lookup); err != nil {
				return err
			}
			continue
		}

		raw, ok := lookup(key)
		if !ok {
			raw, ok = field.Tag.Lookup("default")
		}
		if !ok {
			continue
		}
		if err := setValue(fv, raw); err != nil {
			return fmt.Errorf("config %s: %w", key, err)
		}
	}
	return nil
}

func setValue(fv reflect.Value, raw string) error {
	if fv.Type() == durationType {
		d, err := cast.ToDurationE(raw)
		if err != nil {
			return err
		}
		fv.SetInt(int64(d))
		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Bool:
		b, err := cast.ToBoolE(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := cast.ToInt64E(raw)
		if err != nil {
			return err
		}
		fv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := cast.ToUint64E(raw)
		if err != nil {
			return err
		}
		fv.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(raw)
		if err != nil {
			return err
		}
		fv.SetFloat(f)
	case reflect.Slice:
		if fv.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", fv.Type())
		}
		var items []string
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		fv.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field type %s", fv.Type())
	}
	return nil
}

func joinKey(prefix, tag string) string {
	if prefix == "" {
		return tag
	}
	return prefix + "_" + tag
}
