package aprs

import "testing"

func TestEncodeLat(t *testing.T) {
	tests := []struct {
		lat  float64
		want string
	}{
		{45.5, "4530.00N"},
		{-45.5, "4530.00S"},
		{0, "0000.00N"},
		{45.504166, "4530.25N"},
		{9.25, "0915.00N"},
		{-33.8675, "3352.05S"},
	}
	for _, tt := range tests {
		if got := EncodeLat(tt.lat); got != tt.want {
			t.Errorf("EncodeLat(%v) = %q, want %q", tt.lat, got, tt.want)
		}
	}
}

func TestEncodeLon(t *testing.T) {
	tests := []struct {
		lon  float64
		want string
	}{
		{-9.25, "00915.00W"},
		{9.25, "00915.00E"},
		{0, "00000.00E"},
		{151.207, "15112.42E"},
		{-122.5, "12230.00W"},
	}
	for _, tt := range tests {
		if got := EncodeLon(tt.lon); got != tt.want {
			t.Errorf("EncodeLon(%v) = %q, want %q", tt.lon, got, tt.want)
		}
	}
}

func TestPasscode(t *testing.T) {
	tests := []struct {
		call string
		want int
	}{
		{"N0CALL", 13023},
		{"AB1CDE", 18342},
		{"ab1cde", 18342},
		{"AB1CDE-9", 18342},
	}
	for _, tt := range tests {
		if got := Passcode(tt.call); got != tt.want {
			t.Errorf("Passcode(%q) = %d, want %d", tt.call, got, tt.want)
		}
	}
}

func TestLoginLine(t *testing.T) {
	if got := LoginLine(""); got != "user N0CALL pass -1 vers aprsgate 1.0" {
		t.Errorf("anonymous login line = %q", got)
	}
	if got := LoginLine("AB1CDE"); got != "user AB1CDE pass 18342 vers aprsgate 1.0" {
		t.Errorf("authenticated login line = %q", got)
	}
}

func TestPositionPacket(t *testing.T) {
	id := Identity{
		Callsign: "AB1CDE",
		SSID:     "9",
		Icon:     "$/",
		Comment:  "on the road",
	}
	got := PositionPacket(id, "AB1CDE", 45.5, -9.25)
	want := "AB1CDE-9>APRS,TCPIP*,qAC,AB1CDE:=4530.00N/00915.00W$/on the road"
	if got != want {
		t.Errorf("PositionPacket = %q, want %q", got, want)
	}

	// Anonymous uplinks stamp N0CALL into the q-construct.
	got = PositionPacket(id, "", 45.5, -9.25)
	want = "AB1CDE-9>APRS,TCPIP*,qAC,N0CALL:=4530.00N/00915.00W$/on the road"
	if got != want {
		t.Errorf("PositionPacket anonymous = %q, want %q", got, want)
	}
}
