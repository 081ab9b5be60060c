package main

import "github.com/KaramelBytes/audiobids/cmd"

func main() {
	cmd.Execute()
}
