package main

import "github.com/meatloaf/meatloaf-packager/cmd/meatloaf-packager/cmd"

func main() {
	cmd.Execute()
}
