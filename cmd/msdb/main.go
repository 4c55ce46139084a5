// msdb - m/z and retention-time matching against compound reference libraries
package main

import (
	"fmt"
	"os"

	"github.com/ChrisMcGann/msdb/cmd/msdb/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
