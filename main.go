package main

import "github.com/angela-cli/angela/cmd"

func main() {
	cmd.Execute()
}
