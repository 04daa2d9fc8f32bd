package main

import "qa-gateway/internal/cli"

func main() {
	cli.Execute()
}
