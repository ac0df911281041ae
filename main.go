// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/invowk/pystep/cmd/pystep"

func main() {
	cmd.Execute()
}
