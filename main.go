package main

import "github.com/notargets/goshape/cmd"

func main() {
	cmd.Execute()
}
