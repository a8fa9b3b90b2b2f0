package main

import "github.com/harhit22/new-auto-attendace/cmd"

func main() {
	cmd.Execute()
}
