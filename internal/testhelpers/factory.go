package testhelpers

import (
	"fmt"
	"strings"
	"time"
)

// FeedURL is the host and path the vaccination feed is mocked at.
const (
	FeedBase = "https://services.arcgis.example"
	FeedPath = "/arcgis/rest/services/Vacinacao/FeatureServer/0/query"
	FeedURL  = FeedBase + FeedPath
)

// VaccineDay is one day of the feed as the tests build it.
type VaccineDay struct {
	ObjectID int
	Day      time.Time
	Doses    int64
	DosesAcc int64
	Dose1Acc int64
	Dose2Acc int64
}

// Day returns midnight UTC of the given date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ConsecutiveDays builds n days starting at first, with growing counters.
func ConsecutiveDays(first time.Time, n int) []VaccineDay {
	days := make([]VaccineDay, n)
	for i := range days {
		days[i] = VaccineDay{
			ObjectID: i + 1,
			Day:      first.AddDate(0, 0, i),
			Doses:    int64(10000 + i*100),
			DosesAcc: int64(100000 + i*10000),
			Dose1Acc: int64(80000 + i*8000),
			Dose2Acc: int64(20000 + i*2000),
		}
	}
	return days
}

// Feature renders one ArcGIS feature with 8 attributes, in feed order.
func (d VaccineDay) Feature() string {
	return fmt.Sprintf(`{"attributes":{"ObjectId":%d,"Data":%d,"Vacinados":%d,"Vacinados_Ac":%d,"Inoculacoes":%d,"Inoculacoes_Ac":%d,"Vacinados_Ac_dose1":%d,"Vacinados_Ac_dose2":%d}}`,
		d.ObjectID, d.Day.UnixMilli(), d.Doses, d.Dose1Acc, d.Doses, d.DosesAcc, d.Dose1Acc, d.Dose2Acc)
}

// FeatureCollection wraps raw feature JSON values into a feed response body.
func FeatureCollection(features ...string) string {
	return `{"objectIdFieldName":"ObjectId","geometryType":"esriGeometryPoint","features":[` + strings.Join(features, ",") + `]}`
}

// FeedBody renders a feed response for days.
func FeedBody(days []VaccineDay) string {
	features := make([]string, len(days))
	for i, d := range days {
		features[i] = d.Feature()
	}
	return FeatureCollection(features...)
}
