package main

import (
	"go-media-harvester/cmd/media-harvester/cmd"
)

func main() {
	cmd.Execute()
}
