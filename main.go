package main

import "github.com/jcdickinson/ferrisfind/cmd"

func main() {
	cmd.Execute()
}
