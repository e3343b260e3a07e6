package util

import (
	"log"
	"time"
)

// Trace 打点计时，用法：defer util.Trace("gen stl")()
func Trace(name string) func() {
	start := time.Now()
	return func() {
		log.Printf("%s took %v", name, time.Since(start))
	}
}
