package httpapi

import (
	"strings"

	cascade "github.com/goliatone/go-cascade"
)

// Endpoint maps one hierarchy level onto a collection endpoint.
type Endpoint struct {
	// Path is appended to the client base URL, e.g. "/api/states".
	Path string
	// ParentParam carries the parent id. Empty for root levels.
	ParentParam string
	// QueryParam carries the folded search text. When empty the query is
	// applied to the response locally.
	QueryParam string
	// Record fields. IDField and NameField default to "id" and "name".
	IDField     string
	NameField   string
	ParentField string
	CodeField   string
	// LocalFilter also filters server results by the folded query.
	LocalFilter bool
}

func (e Endpoint) normalized() Endpoint {
	e.Path = strings.TrimSpace(e.Path)
	if e.IDField == "" {
		e.IDField = "id"
	}
	if e.NameField == "" {
		e.NameField = "name"
	}
	return e
}

func (e Endpoint) filtersLocally() bool {
	return e.LocalFilter || e.QueryParam == ""
}

// PortalEndpoints returns the endpoints of the portal API keyed by the level
// names of cascade.GeographicHierarchy.
func PortalEndpoints() map[string]Endpoint {
	return map[string]Endpoint{
		"country": {
			Path:       "/api/countries",
			QueryParam: "name",
		},
		"state": {
			Path:        "/api/states",
			ParentParam: "country_id",
			ParentField: "country_id",
		},
		"locality": {
			Path:        "/api/localities",
			ParentParam: "state_id",
			ParentField: "state_id",
		},
		"zip_code": {
			Path:        "/api/zip-codes",
			QueryParam:  "code",
			NameField:   "code",
			CodeField:   "code",
			ParentField: "locality_id",
		},
	}
}

// ActivityLevel is the level spec used for the activity multi-select.
var ActivityLevel = cascade.LevelSpec{Name: "activity", Label: "Actividades"}

// ActivityEndpoint returns the endpoint listing professional activities.
func ActivityEndpoint() Endpoint {
	return Endpoint{Path: "/api/activities"}
}

// EndpointFromConfig converts a file config endpoint.
func EndpointFromConfig(cfg cascade.EndpointConfig) Endpoint {
	return Endpoint{
		Path:        cfg.Path,
		ParentParam: cfg.ParentParam,
		QueryParam:  cfg.QueryParam,
		IDField:     cfg.IDField,
		NameField:   cfg.NameField,
		ParentField: cfg.ParentField,
		CodeField:   cfg.CodeField,
		LocalFilter: cfg.LocalFilter,
	}
}
