package main

import "github.com/ap0ught/familyman/cmd"

func main() {
	cmd.Execute()
}
