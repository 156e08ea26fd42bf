package main

import "github.com/agentic-research/lenstree/cmd"

func main() {
	cmd.Execute()
}
