package middleware

import "strings"

// Surface is the part of the shop a request belongs to. Metrics, logging,
// CORS and the partner gate all key off it.
type Surface string

// Shop surfaces.
const (
	SurfacePage   Surface = "page"
	SurfaceRegion Surface = "region"
	SurfaceAPI    Surface = "api"
	SurfaceEvents Surface = "events"
	SurfaceAssets Surface = "assets"
	SurfaceOps    Surface = "ops"
)

// Path prefixes of the non-page surfaces.
const (
	APIPrefix    = "/api/"
	RegionPrefix = "/regions/"
	AssetsPrefix = "/assets/"
	EventsPath   = "/ws"
)

var opsPaths = []string{"/health", "/ready", "/metrics"}

// SurfaceOf classifies a request path. Anything unclaimed is a page.
func SurfaceOf(path string) Surface {
	switch {
	case strings.HasPrefix(path, APIPrefix):
		return SurfaceAPI
	case strings.HasPrefix(path, RegionPrefix):
		return SurfaceRegion
	case strings.HasPrefix(path, AssetsPrefix):
		return SurfaceAssets
	case path == EventsPath:
		return SurfaceEvents
	}

	for _, p := range opsPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return SurfaceOps
		}
	}
	return SurfacePage
}

// quiet reports whether requests on s are logged at Debug level.
func (s Surface) quiet() bool {
	return s == SurfaceAssets || s == SurfaceOps
}
