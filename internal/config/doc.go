// SPDX-License-Identifier: MPL-2.0

// Package config loads the pystep configuration using Viper with CUE as the
// file format.
//
// The file is looked up at the --config path, then in the platform
// configuration directory (~/.config/pystep/config.cue on Linux,
// ~/Library/Application Support/pystep/config.cue on macOS,
// %APPDATA%\pystep\config.cue on Windows), then as ./config.cue. Values are
// validated against the embedded config_schema.cue and may be overridden by
// PYSTEP_* environment variables.
//
// A loaded Config is the installation catalog of the virtualenv package,
// the shell registry and the factory for configured build nodes.
package config
