package main

import "github.com/Adithya-Monish-Kumar-K/kvindex/internal/cli"

func main() {
	cli.Execute()
}
