package main

import "github.com/chulingera2025/tron-launcher/cmd"

func main() {
	cmd.Execute()
}
