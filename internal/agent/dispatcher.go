package agent

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LocationRecord is the compact location shape exchanged with tool
// collaborators and returned in tool results.
type LocationRecord struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Address   string  `json:"address,omitempty"`
	Grade     string  `json:"grade,omitempty"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	DistanceM float64 `json:"distance_m,omitempty"`
}

// LocationFinder is the search/geospatial capability the host application
// injects into the dispatcher.
type LocationFinder interface {
	Search(ctx context.Context, query, grade string, limit int) ([]LocationRecord, error)
	Get(ctx context.Context, id string) (*LocationRecord, error)
	Nearby(ctx context.Context, at LatLng, radiusM float64, grade string) ([]LocationRecord, error)
	NearbyFacilities(ctx context.Context, at LatLng, facilityType string, radiusM float64) ([]LocationRecord, error)
}

// UIActionFunc receives map-side effects (navigate, highlight, filter). The
// actual rendering happens client-side from the functionCalls stream event;
// this callback exists for host-side bookkeeping.
type UIActionFunc func(name string, args map[string]any)

// Collaborators binds the dispatcher's capabilities for one session.
type Collaborators struct {
	Locations    LocationFinder
	UI           UIActionFunc
	UserLocation *LatLng
}

// Dispatcher routes tool calls to collaborators. It holds no state and does
// no I/O of its own; every call, success or failure, produces a response.
type Dispatcher struct {
	collab Collaborators
	log    logrus.FieldLogger
}

func NewDispatcher(collab Collaborators, log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{collab: collab, log: log}
}

// Dispatch executes one tool call. Failures are converted to error-shaped
// results; it never panics out to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, call ToolCall) (resp ToolResponse) {
	resp = ToolResponse{ID: call.ID, Name: call.Name}

	defer func() {
		if r := recover(); r != nil {
			d.log.WithFields(logrus.Fields{"tool": call.Name, "panic": r}).Error("tool dispatch panicked")
			resp.Result = errorResult("DISPATCH_FAILED", fmt.Sprintf("internal failure in %s", call.Name))
		}
	}()

	decl, ok := resolveTool(call.Name)
	if !ok {
		resp.Result = errorResult("UNRECOGNIZED_FUNCTION",
			fmt.Sprintf("function %q is not recognized; available functions: %s", call.Name, toolNameList()))
		return resp
	}

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	if missing := decl.missingRequired(args); len(missing) > 0 {
		resp.Result = errorResult("INVALID_ARGUMENT",
			fmt.Sprintf("%s: missing required argument(s): %v", decl.Name, missing))
		return resp
	}

	result, err := d.invoke(ctx, decl.Name, args)
	if err != nil {
		d.log.WithError(err).WithField("tool", decl.Name).Warn("tool dispatch failed")
		resp.Result = errorResult("DISPATCH_FAILED", err.Error())
		return resp
	}
	resp.Result = result
	return resp
}

func (d *Dispatcher) invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	switch name {
	case ToolSearchLocations:
		limit := intArg(args, "limit", 5)
		found, err := d.collab.Locations.Search(ctx, strArg(args, "query"), strArg(args, "grade"), limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "count": len(found), "locations": found}, nil

	case ToolShowLocationDetails:
		loc, err := d.collab.Locations.Get(ctx, strArg(args, "location_id"))
		if err != nil {
			return nil, err
		}
		d.emitUI(name, args)
		return map[string]any{"success": true, "location": loc}, nil

	case ToolNavigateToLocation:
		loc, err := d.collab.Locations.Get(ctx, strArg(args, "location_id"))
		if err != nil {
			return nil, err
		}
		mode := strArg(args, "transport_mode")
		if mode == "" {
			mode = "driving"
		}
		d.emitUI(name, args)
		return map[string]any{"success": true, "destination": loc, "transport_mode": mode}, nil

	case ToolHighlightLocations:
		ids := strSliceArg(args, "location_ids")
		style := strArg(args, "highlight_type")
		if style == "" {
			style = "pulse"
		}
		d.emitUI(name, args)
		return map[string]any{"success": true, "highlighted": ids, "highlight_type": style}, nil

	case ToolSetMapFilter:
		d.emitUI(name, args)
		return map[string]any{"success": true, "category": strArg(args, "category"), "grade": strArg(args, "grade")}, nil

	case ToolFindNearbyLocations:
		at, err := d.requireUserLocation()
		if err != nil {
			return nil, err
		}
		found, err := d.collab.Locations.Nearby(ctx, at, floatArg(args, "radius_m", 1000), strArg(args, "grade"))
		if err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "count": len(found), "locations": found}, nil

	case ToolGetNearbyFacilities:
		at, err := d.requireUserLocation()
		if err != nil {
			return nil, err
		}
		found, err := d.collab.Locations.NearbyFacilities(ctx, at, strArg(args, "facility_type"), floatArg(args, "radius_m", 2000))
		if err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "count": len(found), "facilities": found}, nil
	}

	return nil, fmt.Errorf("no handler bound for %s", name)
}

func (d *Dispatcher) emitUI(name string, args map[string]any) {
	if d.collab.UI != nil {
		d.collab.UI(name, args)
	}
}

func (d *Dispatcher) requireUserLocation() (LatLng, error) {
	if d.collab.UserLocation == nil {
		return LatLng{}, fmt.Errorf("user location was not shared with this session")
	}
	return *d.collab.UserLocation, nil
}

func errorResult(code, message string) map[string]any {
	return map[string]any{"success": false, "code": code, "error": message}
}

func toolNameList() string {
	s := ""
	for i, d := range toolDecls {
		if i > 0 {
			s += ", "
		}
		s += d.Name
	}
	return s
}

func strArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func floatArg(args map[string]any, key string, def float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func strSliceArg(args map[string]any, key string) []string {
	var out []string
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
