package main

import (
	"os"
	"path/filepath"

	app "github.com/karasz/gtimesync/cmd"
)

func main() {
	_, calledAs := filepath.Split(os.Args[0])
	args := os.Args[1:]
	var res int
	switch calledAs {
	case "timesync":
		res = app.TimesyncRun(args)
	case "tailocal":
		res = app.TAILocalRun(args)
	default:
		res = app.MainDispatcher(args)
	}
	os.Exit(res)
}
