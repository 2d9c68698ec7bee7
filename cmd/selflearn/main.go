package main

import (
	"os"

	"github.com/newswire-labs/selflearn-controller/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
