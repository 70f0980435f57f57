// Package flags holds the handful of process-wide knobs every gateway
// subcommand shares: log-level parsing and version print-and-exit.
package flags

import (
	"fmt"
	"os"

	"github.com/flowgate/gateway/pkg/version"
	log "github.com/sirupsen/logrus"
)

// ConfigureLogging parses logLevel (one of logrus's level names) and sets
// it as the process-wide log level, exiting the process on an invalid
// value.
func ConfigureLogging(logLevel string) {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("invalid log-level: %s", logLevel)
	}
	log.SetLevel(level)
}

// MaybePrintVersionAndExit prints the build version and exits the process
// when printVersion is set, otherwise logs the running version at info
// level.
func MaybePrintVersionAndExit(printVersion bool) {
	if printVersion {
		fmt.Println(version.Version)
		os.Exit(0)
	}
	log.Infof("running version %s", version.Version)
}
