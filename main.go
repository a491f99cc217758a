package main

import "github.com/sanchez-kim/obj-viewer/cmd"

func main() {
	cmd.Execute()
}
