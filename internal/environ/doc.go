// SPDX-License-Identifier: MPL-2.0

// Package environ holds the ordered environment map handed to build step
// processes and the composer that layers the ambient build environment,
// build variables and a pluggable setup step.
//
// Build variables can be read from dotenv files (LoadDotenv) or TOML
// documents (LoadTOML).
package environ
