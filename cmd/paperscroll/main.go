// The main package for the paperscroll executable.
package main

import (
	"github.com/TsaiLintung/paper-scroll/cmd"
)

func main() {
	cmd.Execute()
}
