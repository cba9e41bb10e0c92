package main

import "content-eval/internal/cli"

func main() {
	cli.Execute()
}
