package main

import "github.com/scuartasr/tfm-tuberc/cmd"

func main() {
	cmd.Execute()
}
