package main

import "github.com/julienstroheker/hexpipe/cli/cmd"

func main() {
	cmd.Execute()
}
