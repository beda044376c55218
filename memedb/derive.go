package memedb

import (
	"fmt"
	"unicode/utf8"
)

// Deriver computes the index value for a stored value.
// It runs inside a transaction, so it may read from the DB but not write.
type Deriver interface {
	Derive(v any) (any, error)
}

// DeriveFunc adapts a function to Deriver
type DeriveFunc func(v any) (any, error)

func (f DeriveFunc) Derive(v any) (any, error) {
	return f(v)
}

type identity struct{}

func (identity) Derive(v any) (any, error) {
	return v, nil
}

// Identity indexes values as they are. It's used when CreateIndex gets
// a nil Deriver.
var Identity Deriver = identity{}

// Len indexes the length of strings (in runes), arrays and objects.
// Other values, numbers included, fail.
var Len Deriver = DeriveFunc(func(v any) (any, error) {
	switch v := v.(type) {
	case string:
		return utf8.RuneCountInString(v), nil
	case []any:
		return len(v), nil
	case map[string]any:
		return len(v), nil
	}
	return nil, fmt.Errorf("memedb: can't take length of %T", v)
})

// Field indexes the value of a field of an object value.
// Values that are not objects, or don't have the field, index as null.
func Field(name string) Deriver {
	return DeriveFunc(func(v any) (any, error) {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, nil
		}
		return m[name], nil
	})
}

// derive calls d, turning a panic into an error
func derive(d Deriver, v any) (iv any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return d.Derive(v)
}
