// Package internal provides internal implementation for the configx package.
package internal

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// ApplyDefaults sets every field carrying a default tag to its default value.
func ApplyDefaults(target any) error {
	return walk(target, func(field reflect.Value, tag reflect.StructTag) error {
		def, ok := tag.Lookup("default")
		if !ok {
			return nil
		}
		return SetFieldValue(field, def)
	})
}

// BindEnv sets fields whose env tag names a key present in snapshot.
// Keys absent from snapshot leave the field untouched.
func BindEnv(snapshot map[string]string, target any) error {
	return walk(target, func(field reflect.Value, tag reflect.StructTag) error {
		key := tag.Get("env")
		if key == "" {
			return nil
		}
		value, ok := snapshot[key]
		if !ok {
			return nil
		}
		return SetFieldValue(field, value)
	})
}

func walk(target any, fn func(reflect.Value, reflect.StructTag) error) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("target must be a pointer to struct")
	}
	return walkStruct(v.Elem(), fn)
}

func walkStruct(structValue reflect.Value, fn func(reflect.Value, reflect.StructTag) error) error {
	structType := structValue.Type()
	for i := 0; i < structValue.NumField(); i++ {
		field := structValue.Field(i)
		fieldType := structType.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}) {
			if err := walkStruct(field, fn); err != nil {
				return fmt.Errorf("failed to bind nested struct %s: %w", fieldType.Name, err)
			}
			continue
		}
		if err := fn(field, fieldType.Tag); err != nil {
			return fmt.Errorf("failed to set field %s: %w", fieldType.Name, err)
		}
	}
	return nil
}

// SetFieldValue sets a field value from a string.
// Maps of string to int are parsed from "k=v,k2=v2".
func SetFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
		return nil
	case reflect.Map:
		return setMap(field, value)
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

func setMap(field reflect.Value, value string) error {
	if field.Type().Key().Kind() != reflect.String || field.Type().Elem().Kind() != reflect.Int {
		return fmt.Errorf("unsupported map type: %s", field.Type())
	}
	m := reflect.MakeMap(field.Type())
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			return fmt.Errorf("invalid map entry %q, expected key=value", entry)
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid map value for %q: %w", k, err)
		}
		m.SetMapIndex(reflect.ValueOf(strings.TrimSpace(k)), reflect.ValueOf(n).Convert(field.Type().Elem()))
	}
	field.Set(m)
	return nil
}
