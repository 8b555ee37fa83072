// Command reserves builds, signs, and verifies Provisions-style
// proof-of-reserves files. See cmd/reserves for the command tree.
package main

import "github.com/dan/reserves/cmd/reserves"

func main() {
	reserves.Execute()
}
