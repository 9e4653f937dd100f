package main

import "github.com/deplai/deplai-connector/cmd"

func main() {
	cmd.Execute()
}
