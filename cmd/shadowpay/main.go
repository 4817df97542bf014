package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"shadowpay/cmd/internal/passphrase"
)

const (
	rpcURLEnv   = "SHADOWPAY_RPC_URL"
	rpcTokenEnv = "SHADOWPAY_RPC_TOKEN"
	keyPassEnv  = "SHADOWPAY_KEY_PASS"
)

type cli struct {
	stdout     io.Writer
	stderr     io.Writer
	rpcURL     string
	authToken  string
	passphrase func() (string, error)
}

func main() {
	pass := passphrase.NewSource(keyPassEnv, "key")
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, pass.Get))
}

func run(args []string, stdout, stderr io.Writer, pass func() (string, error)) int {
	defaultRPC := strings.TrimSpace(os.Getenv(rpcURLEnv))
	if defaultRPC == "" {
		defaultRPC = "http://127.0.0.1:8899"
	}

	root := flag.NewFlagSet("shadowpay", flag.ContinueOnError)
	root.SetOutput(stderr)
	rpcURL := root.String("rpc", defaultRPC, "Node REST endpoint")
	authToken := root.String("auth", strings.TrimSpace(os.Getenv(rpcTokenEnv)), "Bearer token for transaction submission")
	if err := root.Parse(args); err != nil {
		return 2
	}
	rest := root.Args()
	if len(rest) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}

	c := &cli{stdout: stdout, stderr: stderr, rpcURL: *rpcURL, authToken: *authToken, passphrase: pass}
	switch rest[0] {
	case "keygen":
		return c.keygen(rest[1:])
	case "address":
		return c.address(rest[1:])
	case "derive":
		return c.derive(rest[1:])
	case "create":
		return c.create(rest[1:])
	case "settle":
		return c.settle(rest[1:])
	case "sweep":
		return c.sweep(rest[1:])
	case "show":
		return c.show(rest[1:])
	case "invoice":
		return c.invoice(rest[1:])
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", rest[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func (c *cli) fail(format string, args ...interface{}) int {
	fmt.Fprintf(c.stderr, format+"\n", args...)
	return 1
}

func (c *cli) printJSON(v interface{}) int {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return c.fail("encode output: %v", err)
	}
	return 0
}

func usage() string {
	return `Usage: shadowpay [--rpc URL] [--auth TOKEN] <command> [flags]

Commands:
  keygen   --out FILE                          write a new encrypted key file
  address  --key FILE                          print the address of a key file
  derive   --receiver ADDR --seed SEED         compute a pay request address and bump
  create   --key FILE --seed SEED --amount N   open a pay request and print its invoice
  settle   --key FILE --invoice INV            pay an invoice (or --address ADDR --amount N)
  sweep    --key FILE --address ADDR           withdraw a settled pay request
  show     --address ADDR                      print a pay request
  invoice  encode --address ADDR --amount N | decode INV`
}
