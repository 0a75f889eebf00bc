package expander

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// dateFormat is the wire format for event date windows.
const dateFormat = "2006-01-02"

// ExposureParams filters the exposures listing. Zero values are omitted from
// the query string. Comma-separated multi-value fields (Severity, Provider,
// Tag, BusinessUnit, PortNumber, Sort) follow the vendor's convention.
type ExposureParams struct {
	Limit           int
	Offset          int
	ExposureType    string
	Inet            string
	Content         string
	ActivityStatus  string
	LastEventTime   string
	LastEventWindow string
	Severity        string
	EventType       string
	Provider        string
	Cloud           bool
	Tag             string
	BusinessUnit    string
	PortNumber      string
	Sort            string
}

// Values encodes the set parameters for the exposures query string.
func (p ExposureParams) Values() url.Values {
	v := url.Values{}
	addInt(v, "limit", p.Limit)
	addInt(v, "offset", p.Offset)
	addStr(v, "exposureType", p.ExposureType)
	addStr(v, "inet", p.Inet)
	addStr(v, "content", p.Content)
	addStr(v, "activityStatus", p.ActivityStatus)
	addStr(v, "lastEventTime", p.LastEventTime)
	addStr(v, "lastEventWindow", p.LastEventWindow)
	addStr(v, "severity", p.Severity)
	addStr(v, "eventType", p.EventType)
	addStr(v, "provider", p.Provider)
	if p.Cloud {
		v.Set("cloud", "true")
	}
	addStr(v, "tag", p.Tag)
	addStr(v, "businessUnit", p.BusinessUnit)
	addStr(v, "portNumber", p.PortNumber)
	addStr(v, "sort", p.Sort)
	return v
}

// EventParams selects a date window of events. StartDate and EndDate are
// required, in YYYY-MM-DD form.
type EventParams struct {
	StartDate    string
	EndDate      string
	BusinessUnit string
	EventType    string
	Limit        int
	PageToken    string
}

// Validate checks the date window: both dates parse, the end is not before
// the start, and the end is earlier than today.
func (p EventParams) Validate() error {
	start, err := time.Parse(dateFormat, p.StartDate)
	if err != nil {
		return fmt.Errorf("invalid start date %q: %w", p.StartDate, err)
	}
	end, err := time.Parse(dateFormat, p.EndDate)
	if err != nil {
		return fmt.Errorf("invalid end date %q: %w", p.EndDate, err)
	}
	if end.Before(start) {
		return fmt.Errorf("end date must be the same as or later than start date")
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if !end.Before(today) {
		return fmt.Errorf("end date must be earlier than today")
	}
	return nil
}

// Values encodes the set parameters for the events query string.
func (p EventParams) Values() url.Values {
	v := url.Values{}
	addStr(v, "startDateUtc", p.StartDate)
	addStr(v, "endDateUtc", p.EndDate)
	addStr(v, "businessUnit", p.BusinessUnit)
	addStr(v, "eventType", p.EventType)
	addInt(v, "limit", p.Limit)
	addStr(v, "pageToken", p.PageToken)
	return v
}

// AssetParams filters the cloud and on-prem asset listings.
type AssetParams struct {
	Limit        int
	Offset       int
	Inet         string
	Provider     string
	Tag          string
	BusinessUnit string
	Sort         string
}

// Values encodes the set parameters for an assets query string.
func (p AssetParams) Values() url.Values {
	v := url.Values{}
	addInt(v, "limit", p.Limit)
	addInt(v, "offset", p.Offset)
	addStr(v, "inet", p.Inet)
	addStr(v, "provider", p.Provider)
	addStr(v, "tag", p.Tag)
	addStr(v, "businessUnit", p.BusinessUnit)
	addStr(v, "sort", p.Sort)
	return v
}

func addStr(v url.Values, key, val string) {
	if val != "" {
		v.Set(key, val)
	}
}

func addInt(v url.Values, key string, val int) {
	if val > 0 {
		v.Set(key, strconv.Itoa(val))
	}
}
