package main

import "github.com/swind/go-dexmap/cmd"

func main() {
	cmd.Execute()
}
