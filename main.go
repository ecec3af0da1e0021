package main

import "github.com/rivalscope/rivalscope/cmd"

func main() {
	cmd.Execute()
}
