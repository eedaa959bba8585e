package main

import "hlswatch/cmd"

func main() {
	cmd.Execute()
}
