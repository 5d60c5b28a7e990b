package main

import (
	"log"

	"github.com/IamJunnn/ecoblox-web-curriculum-sub000/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
