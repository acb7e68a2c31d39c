package main

import "github.com/vibast-solutions/ms-go-integrations/cmd"

func main() {
	cmd.Execute()
}
