package main

import "github.com/inboxpilot/inboxd/cmd"

func main() {
	cmd.Execute()
}
