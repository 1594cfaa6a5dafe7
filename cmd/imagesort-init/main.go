package main

import (
	"fmt"
	"os"

	"github.com/menta2k/imagesort"
)

// imagesort-init creates the data/ tree in the working directory. It is safe
// to run repeatedly.
func main() {
	root, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "imagesort-init: %v\n", err)
		os.Exit(1)
	}

	l, err := imagesort.New().Init(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "imagesort-init: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Repo root: %s\n", l.Root)
	fmt.Println("Ensured dirs:")
	for _, dir := range l.Dirs() {
		fmt.Printf("- %s\n", dir)
	}
	fmt.Printf("image_lists.json: %s\n", l.Manifest())
}
