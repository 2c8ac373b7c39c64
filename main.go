package main

import (
	"github.com/overmindtech/flightctl/cmd"
)

func main() {
	cmd.Execute()
}
