package main

import "netflow-crawler/internal/cli"

func main() {
	cli.Execute()
}
