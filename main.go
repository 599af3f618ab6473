package main

import "library-desk/cli"

func main() {
	cli.Execute()
}
