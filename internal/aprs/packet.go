package aprs

import "fmt"

// AnonymousCall is the callsign used when no login callsign is configured.
// APRS-IS accepts it with the receive-only passcode -1.
const AnonymousCall = "N0CALL"

// softwareName and softwareVersion identify the client on the login line.
const (
	softwareName    = "aprsgate"
	softwareVersion = "1.0"
)

// Identity is the station identity stamped onto an outgoing position
// report. Icon is the two-character symbol code appended after the
// longitude.
type Identity struct {
	Callsign string
	SSID     string
	Icon     string
	Comment  string
}

// Source returns the packet source address, CALL-SSID.
func (id Identity) Source() string {
	return id.Callsign + "-" + id.SSID
}

// LoginLine builds the APRS-IS authentication line sent right after the
// server banner. An empty callsign logs in as N0CALL with the read-only
// passcode.
func LoginLine(callsign string) string {
	call := callsign
	pass := -1
	if call == "" {
		call = AnonymousCall
	} else {
		pass = Passcode(call)
	}
	return fmt.Sprintf("user %s pass %d vers %s %s", call, pass, softwareName, softwareVersion)
}

// StatusPacket is the single status beacon sent once per connection,
// right after login.
func StatusPacket() string {
	return AnonymousCall + ">APRS,TCPIP*:>status text"
}

// PositionPacket renders a real-time position report. The timestamped "@"
// variant is deliberately not used: some servers reject it. login is the
// callsign the connection authenticated as and becomes the q-construct
// station in the digipeater path.
func PositionPacket(id Identity, login string, lat, lon float64) string {
	if login == "" {
		login = AnonymousCall
	}
	return fmt.Sprintf("%s>APRS,TCPIP*,qAC,%s:=%s/%s%s%s",
		id.Source(), login, EncodeLat(lat), EncodeLon(lon), id.Icon, id.Comment)
}
