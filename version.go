// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// version.go: build-time version metadata injected via -ldflags and
// exposed through Version().

package exadb

// Build-time variables injected via -ldflags.
//
//	BuildDate format : YYYY.MM.DD-HHMM  (24-hour clock)
//	BuildEnv  values : dev | qa | prod
var (
	// Set by: -ldflags "-X 'github.com/AndrewDonelson/exadb.BuildDate=2026.02.28-1750'"
	BuildDate = "0000.00.00-0000"

	// Set by: -ldflags "-X 'github.com/AndrewDonelson/exadb.BuildEnv=prod'"
	BuildEnv = "dev"
)

// Version returns "YYYY.MM.DD-HHMM-env", e.g. "2026.02.28-1750-dev".
func Version() string {
	return BuildDate + "-" + BuildEnv
}
