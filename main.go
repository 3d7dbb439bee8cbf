package main

import "github.com/agentic-research/tracegen/cmd"

func main() {
	cmd.Execute()
}
