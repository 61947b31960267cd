package main

import "github.com/LeJamon/xrpl-interceptor/internal/cli"

func main() {
	cli.Execute()
}
