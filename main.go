package main

import (
	"log"

	"video-detector/frontend"
	"video-detector/internal/bootstrap"
)

func main() {
	app, err := bootstrap.New(bootstrap.Options{Assets: frontend.Assets})
	if err != nil {
		log.Fatalf("bootstrap app: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("run app: %v", err)
	}
}
