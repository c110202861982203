// Command indexerctl is the CLI client: it dials the server's unix
// socket, sends one command line, and prints the reply. It never opens
// the store directly.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mina-witness/indexer/internal/ipc"
)

func main() {
	var socketPath string
	var jsonOut bool

	app := &cli.App{
		Name:  "indexerctl",
		Usage: "query a running chain witness indexer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "path",
				Value:       "/tmp/indexer.sock",
				Usage:       "unix socket path of the running server",
				Destination: &socketPath,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the reply as JSON",
				Destination: &jsonOut,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "account",
				Usage: "print an account from the latest ledger snapshot",
				Flags: []cli.Flag{&cli.StringFlag{Name: "public-key", Required: true}},
				Action: callWith(&socketPath, &jsonOut, "account", func(c *cli.Context) []string {
					return []string{"--public-key", c.String("public-key")}
				}),
			},
			{
				Name:  "block",
				Usage: "dump the best-tip block or a specific block",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "best-tip"},
					&cli.StringFlag{Name: "state-hash"},
					&cli.BoolFlag{Name: "verbose"},
				},
				Action: callWith(&socketPath, &jsonOut, "block", func(c *cli.Context) []string {
					if c.Bool("best-tip") {
						return []string{"best-tip"}
					}
					return []string{"--state-hash", c.String("state-hash")}
				}),
			},
			{
				Name:  "chain",
				Usage: "dump a suffix of the best chain",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "num", Required: true},
					&cli.StringFlag{Name: "start-state-hash"},
					&cli.StringFlag{Name: "end-state-hash"},
				},
				Action: callWith(&socketPath, &jsonOut, "chain", func(c *cli.Context) []string {
					args := []string{"best-chain", "--num", fmt.Sprint(c.Int("num"))}
					if h := c.String("end-state-hash"); h != "" {
						args = append(args, "--end-state-hash", h)
					}
					return args
				}),
			},
			{
				Name:  "ledger",
				Usage: "dump a ledger by state or ledger hash",
				Flags: []cli.Flag{&cli.StringFlag{Name: "hash", Required: true}},
				Action: callWith(&socketPath, &jsonOut, "ledger", func(c *cli.Context) []string {
					return []string{"--hash", c.String("hash")}
				}),
			},
			{
				Name:  "ledger-at-height",
				Usage: "dump the canonical ledger at a height",
				Flags: []cli.Flag{&cli.Uint64Flag{Name: "height", Required: true}},
				Action: callWith(&socketPath, &jsonOut, "ledger-at-height", func(c *cli.Context) []string {
					return []string{"--height", fmt.Sprint(c.Uint64("height"))}
				}),
			},
			{
				Name:  "checkpoint",
				Usage: "write an atomic store snapshot",
				Flags: []cli.Flag{&cli.StringFlag{Name: "path", Required: true}},
				Action: callWith(&socketPath, &jsonOut, "checkpoint", func(c *cli.Context) []string {
					return []string{"--path", c.String("path")}
				}),
			},
			{
				Name:  "summary",
				Usage: "print runtime summary",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "verbose"}},
				Action: callWith(&socketPath, &jsonOut, "summary", func(c *cli.Context) []string {
					return nil
				}),
			},
			{
				Name:  "shutdown",
				Usage: "send the shutdown command; the server acknowledges it and keeps running",
				Action: callWith(&socketPath, &jsonOut, "shutdown", func(c *cli.Context) []string {
					return nil
				}),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// callWith builds a cli.ActionFunc that dials the server, sends
// command plus argsFn's arguments, and prints the reply.
func callWith(socketPath *string, jsonOut *bool, command string, argsFn func(*cli.Context) []string) cli.ActionFunc {
	return func(c *cli.Context) error {
		client := ipc.NewClient(*socketPath)
		reply, err := client.Call(*jsonOut, command, argsFn(c)...)
		if err != nil {
			return err
		}
		fmt.Print(reply)
		return nil
	}
}
