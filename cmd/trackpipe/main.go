package main

import "github.com/openbehavior/trackpipe/cmd/trackpipe/commands"

func main() {
	commands.Execute()
}
