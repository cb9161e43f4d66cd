package main

import "tracecap/cmd"

func main() {
	cmd.Execute()
}
