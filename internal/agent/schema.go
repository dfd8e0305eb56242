package agent

// ToolParam describes one parameter of a declared tool.
type ToolParam struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // string|number|array
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
}

// ToolDecl is one entry of the canonical tool schema. The same table drives
// both argument validation in the dispatcher and the capability list sent in
// the upstream session setup, so the two can never drift apart.
type ToolDecl struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []ToolParam `json:"parameters"`
}

const (
	ToolSearchLocations     = "search_locations"
	ToolShowLocationDetails = "show_location_details"
	ToolNavigateToLocation  = "navigate_to_location"
	ToolHighlightLocations  = "highlight_locations"
	ToolSetMapFilter        = "set_map_filter"
	ToolFindNearbyLocations = "find_nearby_locations"
	ToolGetNearbyFacilities = "get_nearby_facilities"
)

// Legacy spellings still accepted at dispatch time for older clients.
var toolAliases = map[string]string{
	"show_navigation_route":      ToolNavigateToLocation,
	"highlight_locations_on_map": ToolHighlightLocations,
	"filter_map_category":        ToolSetMapFilter,
}

var toolDecls = []ToolDecl{
	{
		Name:        ToolSearchLocations,
		Description: "Search reported locations by name, address, or free-text description of the place.",
		Params: []ToolParam{
			{Name: "query", Type: "string", Description: "Search text, e.g. a place name or street.", Required: true},
			{Name: "grade", Type: "string", Description: "Only return locations with this cleanliness grade.", Enum: []string{"A", "B", "C", "D", "E"}},
			{Name: "limit", Type: "number", Description: "Maximum number of results, default 5."},
		},
	},
	{
		Name:        ToolShowLocationDetails,
		Description: "Open the detail panel for one location on the map.",
		Params: []ToolParam{
			{Name: "location_id", Type: "string", Description: "ID of the location to show.", Required: true},
		},
	},
	{
		Name:        ToolNavigateToLocation,
		Description: "Show a navigation route from the user's position to a location.",
		Params: []ToolParam{
			{Name: "location_id", Type: "string", Description: "Destination location ID.", Required: true},
			{Name: "transport_mode", Type: "string", Description: "How the user travels.", Enum: []string{"driving", "walking"}},
		},
	},
	{
		Name:        ToolHighlightLocations,
		Description: "Visually highlight one or more locations on the map.",
		Params: []ToolParam{
			{Name: "location_ids", Type: "array", Description: "IDs of the locations to highlight.", Required: true},
			{Name: "highlight_type", Type: "string", Description: "Highlight animation style.", Enum: []string{"pulse", "glow", "bounce"}},
		},
	},
	{
		Name:        ToolSetMapFilter,
		Description: "Filter the map to one category of markers.",
		Params: []ToolParam{
			{Name: "category", Type: "string", Description: "Marker category to keep visible.", Enum: []string{"all", "reports", "facilities"}, Required: true},
			{Name: "grade", Type: "string", Description: "Additionally restrict reports to this grade.", Enum: []string{"A", "B", "C", "D", "E"}},
		},
	},
	{
		Name:        ToolFindNearbyLocations,
		Description: "Find reported locations near the user's current position.",
		Params: []ToolParam{
			{Name: "radius_m", Type: "number", Description: "Search radius in meters, default 1000."},
			{Name: "grade", Type: "string", Description: "Only return locations with this cleanliness grade.", Enum: []string{"A", "B", "C", "D", "E"}},
		},
	},
	{
		Name:        ToolGetNearbyFacilities,
		Description: "Find waste facilities (bins, recycling centers, waste banks) near the user.",
		Params: []ToolParam{
			{Name: "facility_type", Type: "string", Description: "Type of facility to look for.", Enum: []string{"trash_bin", "recycling_center", "waste_bank"}, Required: true},
			{Name: "radius_m", Type: "number", Description: "Search radius in meters, default 2000."},
		},
	},
}

// ToolDeclarations returns the canonical capability list declared to the
// upstream model.
func ToolDeclarations() []ToolDecl {
	out := make([]ToolDecl, len(toolDecls))
	copy(out, toolDecls)
	return out
}

// resolveTool maps a (possibly aliased) call name to its canonical
// declaration.
func resolveTool(name string) (ToolDecl, bool) {
	if canonical, ok := toolAliases[name]; ok {
		name = canonical
	}
	for _, d := range toolDecls {
		if d.Name == name {
			return d, true
		}
	}
	return ToolDecl{}, false
}

func (d ToolDecl) missingRequired(args map[string]any) []string {
	var missing []string
	for _, p := range d.Params {
		if !p.Required {
			continue
		}
		v, ok := args[p.Name]
		if !ok || v == nil {
			missing = append(missing, p.Name)
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			missing = append(missing, p.Name)
		}
	}
	return missing
}
