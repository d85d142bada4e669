package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hitoshi/storefront/internal/app"
)

func main() {
	if err := app.Run(context.Background(), os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
