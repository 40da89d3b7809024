package main

// main is the entry point for ontaudit. Build-time variables live in root.go.
func main() {
	Execute()
}
