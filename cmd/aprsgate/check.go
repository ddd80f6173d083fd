package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/k3vt/aprsgate/internal/aprs"
	"github.com/k3vt/aprsgate/internal/command"
	"github.com/k3vt/aprsgate/internal/storage"
)

var (
	checkSSID    string
	checkIcon    string
	checkComment string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check APRS encoding interactively",
	Long:  `Check what aprsgate would send to APRS-IS for a given callsign or position without connecting.`,
}

var checkPasscodeCmd = &cobra.Command{
	Use:   "passcode CALLSIGN",
	Short: "Derive the APRS-IS passcode for a callsign",
	Long:  `Derive the APRS-IS passcode and login line for a callsign. The SSID suffix is ignored.`,
	Example: `  aprsgate check passcode AB1CDE
  aprsgate check passcode ab1cde-9`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckPasscode,
}

var checkPositionCmd = &cobra.Command{
	Use:   "position [flags] CALLSIGN LAT LON",
	Short: "Encode an APRS position packet",
	Long:  `Encode the position packet aprsgate would transmit for the given callsign and coordinates.`,
	Example: `  aprsgate check position AB1CDE 45.5 -9.25
  aprsgate check position --ssid 7 --icon "[/" --comment "on foot" AB1CDE 51.47 -0.45`,
	Args: cobra.ExactArgs(3),
	RunE: runCheckPosition,
}

func init() {
	checkPositionCmd.Flags().StringVar(&checkSSID, "ssid", storage.DefaultSSID, "SSID appended to the callsign")
	checkPositionCmd.Flags().StringVar(&checkIcon, "icon", storage.DefaultIcon, "Two character APRS symbol code")
	checkPositionCmd.Flags().StringVar(&checkComment, "comment", storage.DefaultComment, "Comment appended to the packet")

	checkCmd.AddCommand(checkPasscodeCmd)
	checkCmd.AddCommand(checkPositionCmd)
	rootCmd.AddCommand(checkCmd)
}

func runCheckPasscode(cmd *cobra.Command, args []string) error {
	// Drop an SSID suffix before validation, the passcode ignores it anyway.
	callsign, err := command.ParseCallsign(strings.SplitN(args[0], "-", 2)[0])
	if err != nil {
		return fmt.Errorf("invalid callsign: %s", args[0])
	}

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("APRS-IS PASSCODE")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Callsign:   %s\n", callsign)
	cyan.Print("Passcode:   ")
	green.Printf("%d\n", aprs.Passcode(callsign))
	fmt.Printf("Login line: %s\n", aprs.LoginLine(callsign))

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	return nil
}

func runCheckPosition(cmd *cobra.Command, args []string) error {
	callsign, err := command.ParseCallsign(args[0])
	if err != nil {
		return fmt.Errorf("invalid callsign: %s", args[0])
	}

	lat, err := strconv.ParseFloat(args[1], 64)
	if err != nil || lat < -90 || lat > 90 {
		return fmt.Errorf("invalid latitude: %s", args[1])
	}
	lon, err := strconv.ParseFloat(args[2], 64)
	if err != nil || lon < -180 || lon > 180 {
		return fmt.Errorf("invalid longitude: %s", args[2])
	}

	if len(checkIcon) != 2 {
		return fmt.Errorf("icon must be exactly 2 characters: %s", checkIcon)
	}

	id := aprs.Identity{
		Callsign: callsign,
		SSID:     checkSSID,
		Icon:     checkIcon,
		Comment:  checkComment,
	}

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("APRS POSITION PACKET")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Source:     %s\n", id.Source())
	fmt.Printf("Latitude:   %.6f → %s\n", lat, aprs.EncodeLat(lat))
	fmt.Printf("Longitude:  %.6f → %s\n", lon, aprs.EncodeLon(lon))
	fmt.Println()

	cyan.Print("Packet:     ")
	green.Println(aprs.PositionPacket(id, callsign, lat, lon))

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	return nil
}
