package main

import (
	"fmt"
	"os"

	cli "github.com/spf13/pflag"

	"bloom/internal/ipc"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: bloom-ctl [--socket PATH] trigger|inject FILE|status|clear")
	os.Exit(2)
}

func main() {
	socketPath := cli.String("socket", ipc.DefaultSocketPath, "Control socket path")
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		usage()
	}

	req := ipc.Request{Cmd: args[0]}
	switch args[0] {
	case "trigger", "status", "clear":
	case "inject":
		if len(args) != 2 {
			usage()
		}
		req.Arg = args[1]
	default:
		usage()
	}

	resp, err := ipc.Send(*socketPath, req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bloomd not running:", err)
		os.Exit(1)
	}
	if !resp.OK {
		fmt.Fprintln(os.Stderr, "error:", resp.Error)
		os.Exit(1)
	}
	if len(resp.Detail) > 0 {
		fmt.Println(string(resp.Detail))
	} else {
		fmt.Println("ok")
	}
}
