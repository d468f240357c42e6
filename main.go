// Package main is the entry point of WebShield.
package main

import "github.com/shieldkit/webshield/internal/cmd"

func main() {
	cmd.Main()
}
