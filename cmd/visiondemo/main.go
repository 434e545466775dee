// Command visiondemo runs fused image pipelines built with the vision
// engine and shows where the engine places kernel boundaries.
//
//	visiondemo run --pipeline edge --device gpu -o edges.png photo.jpg
//	visiondemo plan --pipeline unsharp --fusion conservative
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
