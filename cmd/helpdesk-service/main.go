package main

import (
	"log"

	"github.com/loopback-ai/helpdesk-service/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
