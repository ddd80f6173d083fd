package command

import (
	"errors"
	"regexp"
	"strings"
)

var callsignRE = regexp.MustCompile(`^[a-zA-Z0-9]{1,3}[0-9][a-zA-Z0-9]{0,3}[a-zA-Z]$`)

// ErrInvalidCallsign is returned when no valid amateur callsign can be
// extracted from the input.
var ErrInvalidCallsign = errors.New("invalid callsign")

// ParseCallsign extracts the callsign from compound forms like
// "EA8/AB1CDE/P": the segments are split on "/" and the longest one is
// normally the callsign. The result is validated against the amateur
// callsign pattern and returned uppercased.
func ParseCallsign(input string) (string, error) {
	call := ""
	for _, part := range strings.Split(strings.ToUpper(input), "/") {
		if len(part) > len(call) {
			call = part
		}
	}
	if !callsignRE.MatchString(call) {
		return "", ErrInvalidCallsign
	}
	return call, nil
}
