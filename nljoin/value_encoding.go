package nljoin

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// ValueBytes serializes a non-nil value to bytes
func ValueBytes(v Value) ([]byte, error) {
	switch val := v.(type) {
	case string:
		return []byte(val), nil
	case int64:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(val))
		return buf, nil
	case int:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(int64(val)))
		return buf, nil
	case float64:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, math.Float64bits(val))
		return buf, nil
	case bool:
		if val {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case time.Time:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(val.UnixNano()))
		return buf, nil
	case []byte:
		return val, nil
	default:
		return nil, fmt.Errorf("cannot encode value type: %T", v)
	}
}

// ValueFromBytes deserializes a value from bytes
func ValueFromBytes(vType ValueType, data []byte) (Value, error) {
	switch vType {
	case TypeString:
		return string(data), nil
	case TypeInt:
		if len(data) != 8 {
			return nil, fmt.Errorf("int value must be 8 bytes, got %d", len(data))
		}
		return int64(binary.BigEndian.Uint64(data)), nil
	case TypeFloat:
		if len(data) != 8 {
			return nil, fmt.Errorf("float value must be 8 bytes, got %d", len(data))
		}
		return math.Float64frombits(binary.BigEndian.Uint64(data)), nil
	case TypeBool:
		if len(data) != 1 {
			return nil, fmt.Errorf("bool value must be 1 byte, got %d", len(data))
		}
		return data[0] != 0, nil
	case TypeTime:
		if len(data) != 8 {
			return nil, fmt.Errorf("time value must be 8 bytes, got %d", len(data))
		}
		return time.Unix(0, int64(binary.BigEndian.Uint64(data))).UTC(), nil
	case TypeBytes:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	default:
		return nil, fmt.Errorf("unknown value type: %v", vType)
	}
}
