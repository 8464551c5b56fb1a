package main

import (
	cmd "github.com/rohmanhakim/pdf-discovery-engine/internal/cli"
)

func main() {
	cmd.Execute()
}
