package main

import "github.com/bradmartin/ksync/cmd"

func main() {
	cmd.Execute()
}
