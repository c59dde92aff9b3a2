package models

import "github.com/tidwall/gjson"

// Feature is one element of an ArcGIS feature collection, kept as raw JSON so
// attribute order survives decoding.
type Feature struct {
	Raw gjson.Result
}

// Attributes returns the feature's attribute object, if it has one.
func (f Feature) Attributes() (gjson.Result, bool) {
	attrs := f.Raw.Get("attributes")
	return attrs, attrs.IsObject()
}
