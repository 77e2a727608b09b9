package ason

import _ "embed"

// Version is the release of this module, taken from the VERSION file.
//
//go:embed VERSION
var Version string
