// SPDX-License-Identifier: MPL-2.0

package buildstep

import "strings"

// FixLineEndings rewrites every CR LF pair to a bare LF. A CR that is not
// followed by LF is kept as is.
func FixLineEndings(s string) string {
	for strings.Contains(s, "\r\n") {
		s = strings.ReplaceAll(s, "\r\n", "\n")
	}
	return s
}

// GuardLeadingNonASCII prepends a line feed unless s already starts with one.
//
// Some bash versions treat a script whose first line carries non-ASCII bytes
// as a binary file. An empty first line is a no-op for the shell. Only the
// first byte is checked; the content itself is never scanned.
func GuardLeadingNonASCII(s string) string {
	if strings.HasPrefix(s, "\n") {
		return s
	}
	return "\n" + s
}
