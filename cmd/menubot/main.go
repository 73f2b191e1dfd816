package main

import (
	"log"

	"github.com/joho/godotenv"

	corecmd "github.com/m3rciful/menubot/core/cmd"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	if err := corecmd.Run(corecmd.Options{DefaultConfigPath: ""}); err != nil {
		log.Fatal(err)
	}
}
