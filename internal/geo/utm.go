package geo

import "math"

// EPSGWGS84 is the geographic WGS84 CRS (longitude/latitude in degrees).
const EPSGWGS84 = 4326

const (
	utmNorthBase = 32600
	utmSouthBase = 32700
	utmZones     = 60
)

// UTMZoneEPSG returns the EPSG code of the UTM zone containing lon/lat (degrees, WGS84).
//
// Both terms use round-half-to-even, so points on a half-zone boundary resolve
// the same way every time: lat=0 is treated as south, lon=180 lands in zone 60
// and lon=-180 yields 32600.
// No range check is done here: inputs outside [-180, 180] / [-90, 90] give a
// code outside the UTM ranges, which the reprojector then rejects.
func UTMZoneEPSG(lon, lat float64) int {
	hemisphere := math.RoundToEven((45 + lat) / 90)
	zone := math.RoundToEven((183 + lon) / 6)

	return int(utmSouthBase - hemisphere*100 + zone)
}

// UTMZone decodes a WGS84 UTM EPSG code into its zone number and hemisphere.
// ok is false when epsg is outside 32601-32660 and 32701-32760.
func UTMZone(epsg int) (zone int, south bool, ok bool) {
	switch {
	case epsg > utmNorthBase && epsg <= utmNorthBase+utmZones:
		return epsg - utmNorthBase, false, true
	case epsg > utmSouthBase && epsg <= utmSouthBase+utmZones:
		return epsg - utmSouthBase, true, true
	default:
		return 0, false, false
	}
}
