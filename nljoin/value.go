package nljoin

import (
	"fmt"
	"time"
)

// Value is a single cell of a column. nil is NULL.
//
// Valid value types:
// - string
// - int64
// - float64
// - bool
// - time.Time
// - []byte
type Value interface{}

// ValueType identifies the physical type of a column.
type ValueType byte

const (
	TypeString ValueType = iota
	TypeInt
	TypeFloat
	TypeBool
	TypeTime
	TypeBytes
)

func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeTime:
		return "time"
	case TypeBytes:
		return "bytes"
	default:
		return fmt.Sprintf("ValueType(%d)", byte(t))
	}
}

// Numeric reports whether values of t compare numerically with each other.
func (t ValueType) Numeric() bool {
	return t == TypeInt || t == TypeFloat
}

// Comparable reports whether values of a and b can be ordered against each other.
func Comparable(a, b ValueType) bool {
	if a == b {
		return true
	}
	return a.Numeric() && b.Numeric()
}

// TypeOf returns the type of a non-nil value. int is accepted as TypeInt.
func TypeOf(v Value) (ValueType, error) {
	switch v.(type) {
	case string:
		return TypeString, nil
	case int64, int:
		return TypeInt, nil
	case float64:
		return TypeFloat, nil
	case bool:
		return TypeBool, nil
	case time.Time:
		return TypeTime, nil
	case []byte:
		return TypeBytes, nil
	default:
		return 0, fmt.Errorf("unsupported value type: %T", v)
	}
}
