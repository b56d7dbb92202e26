// Command client is a terminal pass-through for the line relay: it sends
// each stdin line to the server and prints every line it receives.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Tyrowin/linerelay/internal/client"
	"github.com/Tyrowin/linerelay/internal/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "linerelay-client: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var host string
	var port int

	flags := pflag.NewFlagSet("linerelay-client", pflag.ContinueOnError)
	flags.StringVar(&host, "host", "127.0.0.1", "relay host")
	flags.IntVarP(&port, "port", "p", server.DefaultPort, "relay port")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := client.Run(ctx, net.JoinHostPort(host, strconv.Itoa(port)), os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
