package main

import "github.com/mj1618/abivis/cmd"

func main() {
	cmd.Execute()
}
