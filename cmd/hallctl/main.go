package main

import "github.com/penmaen-hall/server/cmd/hallctl/cmd"

func main() {
	cmd.Execute()
}
