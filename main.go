package main

import "cityfix-be/cmd"

func main() {
	cmd.Execute()
}
