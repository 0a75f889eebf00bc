package expander

import "encoding/json"

// Pagination is the next-page indicator returned on every list envelope.
// Next is an absolute URL, or empty when the listing is exhausted.
type Pagination struct {
	Next string `json:"next"`
}

// Meta carries listing metadata.
type Meta struct {
	TotalCount int `json:"totalCount"`
}

// pageEnvelope is the wire shape of every paged Expander listing.
type pageEnvelope[T any] struct {
	Data       []T         `json:"data"`
	Pagination *Pagination `json:"pagination"`
	Meta       *Meta       `json:"meta"`
}

// BusinessUnit identifies the organizational owner of an asset or exposure.
type BusinessUnit struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Exposure is one exposed IP/port observed by Expander.
type Exposure struct {
	ID             string         `json:"id"`
	IP             string         `json:"ip"`
	PortNumber     int            `json:"portNumber"`
	PortProtocol   string         `json:"portProtocol"`
	ExposureType   string         `json:"exposureType"`
	Severity       string         `json:"severity"`
	ActivityStatus string         `json:"activityStatus"`
	Provider       string         `json:"provider"`
	BusinessUnits  []BusinessUnit `json:"businessUnits"`
	LastEventTime  string         `json:"lastEventTime"`
}

// Event is an appearance/disappearance/reappearance record.
type Event struct {
	ID           string          `json:"id"`
	EventType    string          `json:"eventType"`
	EventTime    string          `json:"eventTime"`
	BusinessUnit BusinessUnit    `json:"businessUnit"`
	Payload      json.RawMessage `json:"payload"`
}

// CloudAsset is an IP found in cloud address space.
type CloudAsset struct {
	ID           string         `json:"id"`
	IP           string         `json:"ip"`
	Provider     string         `json:"provider"`
	Domain       string         `json:"domain"`
	Type         string         `json:"type"`
	LastObserved string         `json:"lastObserved"`
	Tags         []string       `json:"tags"`
	BusinessUnit []BusinessUnit `json:"businessUnits"`
}

// OnPremAsset is an IP found in on-premise address space.
type OnPremAsset struct {
	ID           string         `json:"id"`
	IP           string         `json:"ip"`
	Hostname     string         `json:"hostname"`
	LastObserved string         `json:"lastObserved"`
	Tags         []string       `json:"tags"`
	BusinessUnit []BusinessUnit `json:"businessUnits"`
}
