package main

import "github.com/dbsmedya/goreconcile/cmd/goreconcile/cmd"

func main() {
	cmd.Execute()
}
