package main

import "github.com/vietddude/snapshotter/internal/cli"

func main() {
	cli.Execute()
}
