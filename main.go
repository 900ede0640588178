package main

import "cao/cmd"

func main() {
	cmd.Execute()
}
