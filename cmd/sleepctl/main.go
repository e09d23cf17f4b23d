package main

import "github.com/yourname/sleepbot/internal/cli"

func main() {
	cli.Execute()
}
