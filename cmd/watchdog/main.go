// The watchdog binary's entry point. It is spawned by an application
// linking this package, never run directly by a user: argv[1] is the
// grace-seconds string forwarded by the application, and argv[2:] is the
// application's own original argv.

package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	wdinternal "github.com/nshenderov/watchdog/internal"
)

// Command line args; defined at package scope since flags are parsed in main.
var (
	versionArg = flag.Bool(
		"version",
		false,
		wdinternal.FormatFlagUsage(
			`Print the version and exit`,
		),
	)
)

func usage() {
	fmt.Fprintln(os.Stderr, wdinternal.FormatFlagUsage(
		`usage: watchdog [-version] <grace_seconds> <app_path> [app_args...]

		This binary is spawned by an application linked against the watchdog
		package; it is not meant to be invoked directly by a user.`,
	))
	flag.PrintDefaults()
}

var mainLog = wdinternal.NewCompLogger("watchdog")

func main() {
	flag.Usage = usage
	flag.Parse()

	if *versionArg {
		fmt.Fprintln(os.Stderr, "watchdog (github.com/nshenderov/watchdog)")
		os.Exit(0)
	}

	posArgs := flag.Args()
	if len(posArgs) < 2 {
		usage()
		os.Exit(1)
	}

	graceSeconds, err := strconv.Atoi(posArgs[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid grace_seconds %q: %v\n", posArgs[0], err)
		os.Exit(1)
	}

	argv := append([]string{os.Args[0]}, posArgs...)

	mainLog.Infof("start: grace_seconds=%d, app=%s", graceSeconds, posArgs[1])
	os.Exit(wdinternal.StartWatchdog(argv, graceSeconds))
}
