// cmd/roster-import/main.go
package main

func main() {
	Execute()
}
