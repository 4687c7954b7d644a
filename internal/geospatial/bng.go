package geospatial

import "math"

// SRIDBritishNationalGrid is EPSG:27700.
const SRIDBritishNationalGrid = 27700

// SRIDWGS84 is EPSG:4326.
const SRIDWGS84 = 4326

type ellipsoid struct{ a, b float64 }

var (
	wgs84    = ellipsoid{a: 6378137.000, b: 6356752.3142}
	airy1830 = ellipsoid{a: 6377563.396, b: 6356256.909}
)

// National Grid true origin and scale factor.
const (
	bngF0   = 0.9996012717
	bngLat0 = 49.0
	bngLon0 = -2.0
	bngE0   = 400000.0
	bngN0   = -100000.0
)

// WGS84 to OSGB36 seven-parameter Helmert transform. Translations in
// metres, scale in ppm, rotations in arc seconds.
var toOSGB36 = struct{ tx, ty, tz, s, rx, ry, rz float64 }{
	tx: -446.448, ty: 125.157, tz: -542.060,
	s:  20.4894,
	rx: -0.1502, ry: -0.2470, rz: -0.8421,
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }
func deg(r float64) float64   { return r * 180 / math.Pi }

// ToBNG converts a WGS84 latitude/longitude in degrees to British National
// Grid easting and northing in metres. Accuracy is that of the Helmert
// transform, a few metres across Great Britain.
func ToBNG(lat, lon float64) (easting, northing float64) {
	phi, lam := helmert(lat, lon)
	return projectAiry(phi, lam)
}

// helmert shifts a WGS84 position onto the OSGB36 datum, returning degrees.
func helmert(lat, lon float64) (float64, float64) {
	x, y, z := toCartesian(wgs84, rad(lat), rad(lon))

	p := toOSGB36
	s := 1 + p.s*1e-6
	arcsec := math.Pi / (180 * 3600)
	rx, ry, rz := p.rx*arcsec, p.ry*arcsec, p.rz*arcsec

	x2 := p.tx + s*x - rz*y + ry*z
	y2 := p.ty + rz*x + s*y - rx*z
	z2 := p.tz - ry*x + rx*y + s*z

	phi, lam := fromCartesian(airy1830, x2, y2, z2)
	return deg(phi), deg(lam)
}

func toCartesian(e ellipsoid, phi, lam float64) (x, y, z float64) {
	e2 := 1 - (e.b*e.b)/(e.a*e.a)
	sinPhi := math.Sin(phi)
	nu := e.a / math.Sqrt(1-e2*sinPhi*sinPhi)
	x = nu * math.Cos(phi) * math.Cos(lam)
	y = nu * math.Cos(phi) * math.Sin(lam)
	z = nu * (1 - e2) * sinPhi
	return x, y, z
}

func fromCartesian(e ellipsoid, x, y, z float64) (phi, lam float64) {
	e2 := 1 - (e.b*e.b)/(e.a*e.a)
	p := math.Hypot(x, y)
	phi = math.Atan2(z, p*(1-e2))
	for i := 0; i < 10; i++ {
		sinPhi := math.Sin(phi)
		nu := e.a / math.Sqrt(1-e2*sinPhi*sinPhi)
		next := math.Atan2(z+e2*nu*sinPhi, p)
		if math.Abs(next-phi) < 1e-12 {
			phi = next
			break
		}
		phi = next
	}
	return phi, math.Atan2(y, x)
}

// projectAiry applies the National Grid transverse Mercator projection to an
// OSGB36 latitude/longitude in degrees.
func projectAiry(lat, lon float64) (float64, float64) {
	a, b := airy1830.a, airy1830.b
	phi, lam := rad(lat), rad(lon)
	phi0, lam0 := rad(bngLat0), rad(bngLon0)

	e2 := 1 - (b*b)/(a*a)
	n := (a - b) / (a + b)
	n2, n3 := n*n, n*n*n

	sinPhi, cosPhi := math.Sin(phi), math.Cos(phi)
	tanPhi := math.Tan(phi)
	tan2 := tanPhi * tanPhi
	tan4 := tan2 * tan2

	nu := a * bngF0 / math.Sqrt(1-e2*sinPhi*sinPhi)
	rho := a * bngF0 * (1 - e2) / math.Pow(1-e2*sinPhi*sinPhi, 1.5)
	eta2 := nu/rho - 1

	dp, sp := phi-phi0, phi+phi0
	m := b * bngF0 * ((1+n+1.25*n2+1.25*n3)*dp -
		(3*n+3*n2+21.0/8*n3)*math.Sin(dp)*math.Cos(sp) +
		(15.0/8*n2+15.0/8*n3)*math.Sin(2*dp)*math.Cos(2*sp) -
		(35.0/24*n3)*math.Sin(3*dp)*math.Cos(3*sp))

	cos3 := cosPhi * cosPhi * cosPhi
	cos5 := cos3 * cosPhi * cosPhi

	i := m + bngN0
	ii := nu / 2 * sinPhi * cosPhi
	iii := nu / 24 * sinPhi * cos3 * (5 - tan2 + 9*eta2)
	iiia := nu / 720 * sinPhi * cos5 * (61 - 58*tan2 + tan4)
	iv := nu * cosPhi
	v := nu / 6 * cos3 * (nu/rho - tan2)
	vi := nu / 120 * cos5 * (5 - 18*tan2 + tan4 + 14*eta2 - 58*tan2*eta2)

	dl := lam - lam0
	dl2 := dl * dl
	north := i + ii*dl2 + iii*dl2*dl2 + iiia*dl2*dl2*dl2
	east := bngE0 + iv*dl + v*dl2*dl + vi*dl2*dl2*dl
	return east, north
}
