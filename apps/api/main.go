package main

import (
	"log"
	_ "net/http/pprof" // registers the /debug/pprof handlers on the debug server
)

func main() {
	startWithDig()
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
