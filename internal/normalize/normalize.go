package normalize

import (
	"math"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"vacinacao/internal/models"
)

const (
	isoLayout      = "2006-01-02T15:04:05"
	isoMicroLayout = "2006-01-02T15:04:05.000000"
)

// Features flattens each feature's attributes into a Record, in input order.
// Features without an attributes object are dropped. When Data holds an epoch
// in milliseconds, DataISO is set to that instant in loc.
func Features(features []models.Feature, loc *time.Location) []*models.Record {
	if loc == nil {
		loc = time.Local
	}

	records := make([]*models.Record, 0, len(features))
	for _, f := range features {
		attrs, ok := f.Attributes()
		if !ok {
			continue
		}

		rec := models.NewRecord()
		attrs.ForEach(func(key, value gjson.Result) bool {
			rec.Set(key.String(), scalar(value))
			return true
		})

		if data := attrs.Get(models.FieldDate); data.Type == gjson.Number {
			rec.Set(models.FieldDateISO, ISO(EpochMillis(data), loc))
		}

		records = append(records, rec)
	}

	return records
}

// EpochMillis converts a JSON number of milliseconds since the Unix epoch to a time.
func EpochMillis(v gjson.Result) time.Time {
	if !strings.ContainsAny(v.Raw, ".eE") {
		return time.UnixMilli(v.Int())
	}
	return time.UnixMicro(int64(math.Round(v.Float() * 1000)))
}

// ISO formats t in loc without a zone offset; microseconds appear only when non-zero.
func ISO(t time.Time, loc *time.Location) string {
	t = t.In(loc)
	if t.Nanosecond()/1000 == 0 {
		return t.Format(isoLayout)
	}
	return t.Format(isoMicroLayout)
}

func scalar(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return v.Str
	default:
		// numbers, booleans and nested JSON keep their literal text
		return v.Raw
	}
}
