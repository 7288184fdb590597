// main.go - Application entry point
package main

import (
	"github.com/joho/godotenv"

	"poolscan/cmd"
)

func main() {
	// Optional .env for local development; real deployments use the environment.
	_ = godotenv.Load()

	cmd.Execute()
}
