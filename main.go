package main

import "github.com/xiaot623/rica/internal/cli"

func main() {
	cli.Execute()
}
