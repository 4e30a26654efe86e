// Package main starts signvault, a portal for downloading finalized D4Sign
// documents and tracking which ones were already downloaded.
package main

import "signvault/cmd"

func main() {
	cmd.Execute()
}
