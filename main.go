package main

import "github.com/parolam/breach-checker/cmd"

func main() {
	cmd.Execute()
}
