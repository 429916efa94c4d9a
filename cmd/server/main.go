package main

import "github.com/penmaen-hall/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
