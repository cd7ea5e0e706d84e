package main

import "github.com/ValentinKolb/sTensor/cmd"

func main() {
	cmd.Execute()
}
