package main

import "github.com/audiolibrelab/beatgrid/cmd"

func main() {
	cmd.Execute()
}
