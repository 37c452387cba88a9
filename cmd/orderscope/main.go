// Command orderscope browses and searches a large remote order dataset,
// either as an HTTP server for the console or directly from the terminal.
package main

func main() {
	Execute()
}
