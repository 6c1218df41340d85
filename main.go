package main

import "github.com/saito-wk/changemoji/cmd"

func main() {
	cmd.Execute()
}
