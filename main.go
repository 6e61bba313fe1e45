package main

import "github.com/andresmejia3/hyperredact/cmd"

func main() {
	cmd.Execute()
}
