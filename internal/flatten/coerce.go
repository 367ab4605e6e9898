package flatten

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pmichalski/clocksync/pkg/models"
)

// coerce converts a raw scalar to the column's declared type. Duration
// columns take a millisecond count and store decimal hours.
func coerce(val any, col models.Column) (any, error) {
	if col.Duration {
		ms, err := toFloat(val)
		if err != nil {
			return nil, err
		}
		return ms / millisPerHour, nil
	}

	switch col.Type {
	case models.ColString:
		return fmt.Sprintf("%v", val), nil
	case models.ColFloat:
		return toFloat(val)
	case models.ColBool:
		return toBool(val)
	case models.ColInt:
		return toInt(val)
	case models.ColTimestamp, models.ColDate:
		return toTime(val)
	default:
		return nil, fmt.Errorf("unknown column type %q", col.Type)
	}
}

func toFloat(val any) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float", val)
	}
}

func toInt(val any) (int64, error) {
	switch v := val.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to int", val)
	}
}

func toBool(val any) (bool, error) {
	switch v := val.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("cannot convert %T to bool", val)
	}
}

func toTime(val any) (time.Time, error) {
	switch v := val.(type) {
	case time.Time:
		return v, nil
	case string:
		formats := []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02 15:04:05",
			"2006-01-02",
		}
		for _, f := range formats {
			if t, err := time.Parse(f, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unable to parse datetime: %s", v)
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to time", val)
	}
}
