// Package clix maps urfave/cli flag values onto config structs through
// `cli:"flag-name"` struct tags, so each service package can declare its own
// Config next to the code that uses it.
package clix

import (
	"reflect"
	"time"

	"github.com/urfave/cli/v2"
)

func Parse[A any](c *cli.Context) A {
	var cfg A
	assign(c, reflect.ValueOf(&cfg).Elem())
	return cfg
}

func assign(c *cli.Context, val reflect.Value) {
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := val.Type().Field(i)

		tag := fieldType.Tag.Get("cli")

		// untagged embedded config sections
		if tag == "" && field.Kind() == reflect.Struct {
			if field.Addr().CanInterface() {
				assign(c, field)
			}
			continue
		}
		if tag == "" {
			continue
		}

		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			field.Set(reflect.ValueOf(c.Duration(tag)))
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(c.String(tag))
		case reflect.Int, reflect.Int64:
			field.SetInt(c.Int64(tag))
		case reflect.Uint, reflect.Uint64:
			field.SetUint(c.Uint64(tag))
		case reflect.Bool:
			field.SetBool(c.Bool(tag))
		case reflect.Float64:
			field.SetFloat(c.Float64(tag))
		case reflect.Slice:
			if field.Type() == reflect.TypeOf([]string{}) {
				field.Set(reflect.ValueOf(c.StringSlice(tag)))
			}
		}
	}
}
