package main

import "github.com/sszokoly/sbctail/internal/cmd"

func main() {
	cmd.Execute()
}
