package main

import (
	"os"

	"github.com/heyross/InvokeAI/internal/invokectl"
)

func main() {
	os.Exit(invokectl.Run(os.Args[1:]))
}
