// The main package for the inspections executable.
package main

import (
	"github.com/keystonedata/inspections-pipeline/cmd"
)

func main() {
	cmd.Execute()
}
