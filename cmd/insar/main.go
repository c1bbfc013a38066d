package main

import "github.com/LuckyLaurence/InSAR-Pipeline/internal/cmd"

func main() {
	cmd.Execute()
}
