// Command sanlaz reproduces the sanitation and child-growth analysis over
// the WASH Benefits Bangladesh and Kenya control arms.
package main

import (
	"github.com/apex/log"
	"github.com/washb/sanlaz/internal/cli"
	"github.com/washb/sanlaz/internal/runtimex"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Fatalf("%+v", r)
		}
	}()
	root := cli.NewRootCommand()
	err := root.Execute()
	runtimex.PanicOnError(err, "root.Execute")
}
