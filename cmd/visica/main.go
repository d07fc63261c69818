package main

import "github.com/jmcleod/visica/cmd/visica/cmd"

func main() {
	cmd.Execute()
}
