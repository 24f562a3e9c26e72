package main

import "github.com/Abhaythakor/fingerprintweb/cmd"

func main() {
	cmd.Execute()
}
