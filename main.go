package main

import (
	"log"

	"github.com/tenderops/bid-reviewer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
