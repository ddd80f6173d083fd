package aprs

import "fmt"

// EncodeLat converts a decimal-degree latitude to the APRS DDMM.MM[N|S]
// notation. Degrees are truncated, the remainder becomes decimal minutes
// with two fractional digits.
func EncodeLat(lat float64) string {
	dir := "N"
	if lat < 0 {
		dir = "S"
		lat = -lat
	}
	deg := int(lat)
	min := (lat - float64(deg)) * 60
	return fmt.Sprintf("%02d%05.2f%s", deg, min, dir)
}

// EncodeLon converts a decimal-degree longitude to DDDMM.MM[E|W]. Same
// scheme as EncodeLat except degrees are zero-padded to three digits.
func EncodeLon(lon float64) string {
	dir := "E"
	if lon < 0 {
		dir = "W"
		lon = -lon
	}
	deg := int(lon)
	min := (lon - float64(deg)) * 60
	return fmt.Sprintf("%03d%05.2f%s", deg, min, dir)
}
