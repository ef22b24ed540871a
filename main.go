package main

import "hut-availability/cmd"

func main() {
	cmd.Execute()
}
