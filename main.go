package main

import "github.com/SteveHuang27GitHub/microhh/cmd"

func main() {
	cmd.Execute()
}
