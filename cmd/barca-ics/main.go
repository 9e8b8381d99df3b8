package main

import (
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/barcelona-calendar/barca-ics/internal/cli"
)

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	cli.Execute()
}
