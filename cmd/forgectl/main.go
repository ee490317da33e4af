package main

import "github.com/thesara-space/forge/cmd/forgectl/commands"

func main() {
	commands.Execute()
}
