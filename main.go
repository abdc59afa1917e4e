package main

import "github.com/Wolfe-Services/Tachikoma-sub024/cmd"

func main() {
	cmd.Execute()
}
