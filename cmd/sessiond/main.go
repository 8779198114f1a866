package main

import "github.com/pawsy/sessiond/cmd/sessiond/cmd"

func main() {
	cmd.Execute()
}
