package main

import (
	"fmt"
	"os"
)

func main() {
	cmd := &command{}

	if err := cmd.Cmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
