package main

import (
	cmd "github.com/cozy-creator/cattleid/cmd/cattleid"
)

func main() {
	cmd.Execute()
}
