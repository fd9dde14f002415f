package main

import "github.com/chukul/webidctl/cmd"

func main() {
	cmd.Execute()
}
