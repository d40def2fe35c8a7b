package main

import "github.com/aussiebroadwan/idsrv/internal/idsrv/cli"

func main() {
	cli.Execute()
}
