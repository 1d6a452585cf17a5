package main

import "github.com/classtools/classroom-sync/cmd"

func main() {
	cmd.Execute()
}
