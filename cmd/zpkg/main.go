package main

import "github.com/adnn/zpkg/cmd/zpkg/internal"

func main() {
	internal.Execute()
}
