package main

import (
	"cmdq/internal/cli"
)

func main() {
	cli.Execute()
}
