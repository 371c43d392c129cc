package main

import (
	"fmt"
	"os"

	"github.com/codescalpel/scalpel/cmd"
	"github.com/codescalpel/scalpel/output"
)

func main() {
	err := cmd.Execute()
	if err != nil {
		fmt.Println(err)
	}
	os.Exit(int(output.DetermineExitCode(err)))
}
