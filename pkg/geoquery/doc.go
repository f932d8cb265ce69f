// Package geoquery defines the declarative subset/filter specification that
// clients submit against catalog products.
//
// # Wire Format
//
// A query is a JSON document with a small set of known keys:
//
//	{
//	  "variable": "tas" | ["tas", "pr"],
//	  "time":     {"start": ..., "stop": ..., "step": ...}
//	              | {"year": [...], "month": [...], "day": [...], "hour": [...]},
//	  "area":     {"north": f, "south": f, "east": f, "west": f},
//	  "location": {"latitude": f|[f], "longitude": f|[f]},
//	  "vertical": f | [f] | {"start": f, "stop": f, "step": f},
//	  "format":   "netcdf",
//	  "format_args": {...}
//	}
//
// Unknown top-level keys are lifted into the Filters map and survive a
// parse/serialize round trip inside the "filters" object. The "area" and
// "location" selectors are mutually exclusive. Range-shaped objects
// ({start, stop}) are half-open.
//
// The gateway stores the submitted JSON verbatim; this package is used for
// validation and for the canonical representation placed on the worker queue.
package geoquery
