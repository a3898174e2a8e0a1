package main

import (
	"veille/cmd/handlers"
	"veille/internal/logger"
)

func main() {
	logger.Init() // Initialize the logger
	handlers.Execute()
}
