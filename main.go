package main

import "github.com/mj1618/web-bridge/cmd"

func main() {
	cmd.Execute()
}
