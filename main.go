package main

import "github.com/clipgrab/clipgrab_server/cmd"

func main() {
	cmd.Execute()
}
