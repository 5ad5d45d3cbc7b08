// Package main is the entry point for the Stellar media server.
package main

func main() {
	Execute()
}
