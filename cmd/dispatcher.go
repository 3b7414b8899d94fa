package cmd

import (
	"fmt"
	"os"
)

// MainDispatcher is called if run as "gtimesync <applet>"
func MainDispatcher(args []string) int {
	if len(args) == 0 {
		_, _ = fmt.Println("Available applets: timesync,tailocal")
		return 111
	}

	switch args[0] {
	case "timesync":
		return TimesyncRun(args[1:])
	case "tailocal":
		return TAILocalRun(args[1:])
	default:
		_, _ = fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		return 111
	}
}
