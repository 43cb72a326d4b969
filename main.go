package main

import (
	"github.com/asccclass/skillbridge/cmd"
)

func main() {
	cmd.Execute()
}
