package main

import (
	"context"
	"os"

	"github.com/regdbot/regdbot/internal/cli/regdbot"
)

func main() {
	code := regdbot.Run(context.Background(), os.Args[1:], regdbot.Options{
		Lookup: os.LookupEnv,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	os.Exit(code)
}
