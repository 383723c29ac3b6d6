package main

import "github.com/thefass/ub-tools/cmd"

func main() {
	cmd.Execute()
}
