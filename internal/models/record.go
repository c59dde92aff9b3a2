package models

// Field names the vaccination feed and the report rely on.
const (
	FieldDate    = "Data"
	FieldDateISO = "DataISO"
)

// Record is a flat, ordered set of attribute values for one day.
type Record struct {
	keys   []string
	values map[string]string
}

func NewRecord() *Record {
	return &Record{values: map[string]string{}}
}

// Set stores value under key. A new key is appended; an existing one keeps its position.
func (r *Record) Set(key, value string) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

func (r *Record) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the field names in insertion order.
func (r *Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

func (r *Record) Len() int {
	return len(r.keys)
}

// Row lays the record out along columns; absent fields become empty strings.
func (r *Record) Row(columns []string) []string {
	row := make([]string, len(columns))
	for i, c := range columns {
		row[i] = r.values[c]
	}
	return row
}
