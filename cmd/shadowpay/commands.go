package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"shadowpay/crypto"
	"shadowpay/native/payrequest"
	"shadowpay/sdk/client"
)

const requestTimeout = 30 * time.Second

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *cli) client() (*client.Client, error) {
	return client.New(c.rpcURL, client.WithAuthToken(c.authToken))
}

func (c *cli) loadKey(path string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("--key is required")
	}
	pass, err := c.passphrase()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}

// parseSeed accepts the secret seed as text or, with a 0x prefix, as hex.
func parseSeed(raw string) ([]byte, error) {
	if strings.HasPrefix(raw, "0x") {
		seed, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid hex seed: %w", err)
		}
		return seed, nil
	}
	return []byte(raw), nil
}

func (c *cli) keygen(args []string) int {
	fs := c.flags("keygen")
	out := fs.String("out", "", "Key file to write")
	light := fs.Bool("light", false, "Use light scrypt parameters (testing only)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*out) == "" {
		return c.fail("--out is required")
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return c.fail("generate key: %v", err)
	}
	pass, err := c.passphrase()
	if err != nil {
		return c.fail("%v", err)
	}
	params := crypto.StandardKeystoreParams
	if *light {
		params = crypto.LightKeystoreParams
	}
	if err := crypto.SaveToKeystoreWithParams(*out, key, pass, params); err != nil {
		return c.fail("write key file: %v", err)
	}
	fmt.Fprintln(c.stdout, crypto.FormatAddress(key.Address()))
	return 0
}

func (c *cli) address(args []string) int {
	fs := c.flags("address")
	keyPath := fs.String("key", "", "Key file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	key, err := c.loadKey(*keyPath)
	if err != nil {
		return c.fail("load key: %v", err)
	}
	fmt.Fprintln(c.stdout, crypto.FormatAddress(key.Address()))
	return 0
}

func (c *cli) derive(args []string) int {
	fs := c.flags("derive")
	receiverFlag := fs.String("receiver", "", "Receiver address")
	seedFlag := fs.String("seed", "", "Secret seed (text, or 0x-prefixed hex)")
	programFlag := fs.String("program", "", "Program id (defaults to the built-in program)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	receiver, err := crypto.ParseAddress(*receiverFlag)
	if err != nil {
		return c.fail("receiver: %v", err)
	}
	seed, err := parseSeed(*seedFlag)
	if err != nil {
		return c.fail("%v", err)
	}
	programID := payrequest.DefaultProgramID
	if strings.TrimSpace(*programFlag) != "" {
		if programID, err = crypto.ParseAddress(*programFlag); err != nil {
			return c.fail("program: %v", err)
		}
	}
	addr, bump, err := payrequest.Derive(programID, receiver, seed)
	if err != nil {
		return c.fail("derive: %v", err)
	}
	return c.printJSON(map[string]interface{}{
		"address": crypto.FormatAddress(addr),
		"bump":    bump,
	})
}

func (c *cli) create(args []string) int {
	fs := c.flags("create")
	keyPath := fs.String("key", "", "Receiver key file")
	seedFlag := fs.String("seed", "", "Secret seed (text, or 0x-prefixed hex)")
	amount := fs.Uint64("amount", 0, "Requested amount in lamports")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	seed, err := parseSeed(*seedFlag)
	if err != nil {
		return c.fail("%v", err)
	}
	key, err := c.loadKey(*keyPath)
	if err != nil {
		return c.fail("load key: %v", err)
	}
	api, err := c.client()
	if err != nil {
		return c.fail("%v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	receipt, ref, err := api.CreatePayRequest(ctx, key, seed, *amount)
	if err != nil {
		return c.fail("create: %v", err)
	}
	inv, err := crypto.EncodeInvoice(crypto.Invoice{Address: ref.Address, Amount: *amount})
	if err != nil {
		return c.fail("encode invoice: %v", err)
	}
	return c.printJSON(map[string]interface{}{
		"invoice": inv,
		"receipt": receipt,
	})
}

// resolveReference completes a settle or sweep target, fetching the bump from
// the node when it was not supplied.
func resolveReference(ctx context.Context, api *client.Client, addr [32]byte, bump int) (payrequest.Reference, error) {
	if bump >= 0 {
		if bump > 255 {
			return payrequest.Reference{}, fmt.Errorf("bump %d out of range", bump)
		}
		return payrequest.Reference{Address: addr, Bump: uint8(bump)}, nil
	}
	view, err := api.PayRequest(ctx, addr)
	if err != nil {
		return payrequest.Reference{}, err
	}
	return payrequest.Reference{Address: addr, Bump: view.Bump}, nil
}

func (c *cli) settle(args []string) int {
	fs := c.flags("settle")
	keyPath := fs.String("key", "", "Payer key file")
	invoiceFlag := fs.String("invoice", "", "Invoice to pay")
	addressFlag := fs.String("address", "", "Pay request address (instead of --invoice)")
	amount := fs.Uint64("amount", 0, "Deposit in lamports (defaults to the invoice amount)")
	bump := fs.Int("bump", -1, "Bump (fetched from the node when omitted)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	var addr [32]byte
	deposit := *amount
	switch {
	case strings.TrimSpace(*invoiceFlag) != "":
		inv, err := crypto.DecodeInvoice(*invoiceFlag)
		if err != nil {
			return c.fail("invoice: %v", err)
		}
		addr = inv.Address
		if deposit == 0 {
			deposit = inv.Amount
		}
	case strings.TrimSpace(*addressFlag) != "":
		parsed, err := crypto.ParseAddress(*addressFlag)
		if err != nil {
			return c.fail("address: %v", err)
		}
		addr = parsed
	default:
		return c.fail("--invoice or --address is required")
	}
	key, err := c.loadKey(*keyPath)
	if err != nil {
		return c.fail("load key: %v", err)
	}
	api, err := c.client()
	if err != nil {
		return c.fail("%v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	ref, err := resolveReference(ctx, api, addr, *bump)
	if err != nil {
		return c.fail("resolve pay request: %v", err)
	}
	receipt, err := api.SettlePayment(ctx, key, ref, deposit)
	if err != nil {
		return c.fail("settle: %v", err)
	}
	return c.printJSON(receipt)
}

func (c *cli) sweep(args []string) int {
	fs := c.flags("sweep")
	keyPath := fs.String("key", "", "Receiver key file")
	addressFlag := fs.String("address", "", "Pay request address")
	bump := fs.Int("bump", -1, "Bump (fetched from the node when omitted)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	addr, err := crypto.ParseAddress(*addressFlag)
	if err != nil {
		return c.fail("address: %v", err)
	}
	key, err := c.loadKey(*keyPath)
	if err != nil {
		return c.fail("load key: %v", err)
	}
	api, err := c.client()
	if err != nil {
		return c.fail("%v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	ref, err := resolveReference(ctx, api, addr, *bump)
	if err != nil {
		return c.fail("resolve pay request: %v", err)
	}
	receipt, err := api.SweepFunds(ctx, key, ref)
	if err != nil {
		return c.fail("sweep: %v", err)
	}
	return c.printJSON(receipt)
}

func (c *cli) show(args []string) int {
	fs := c.flags("show")
	addressFlag := fs.String("address", "", "Pay request address")
	withEvents := fs.Bool("events", false, "Include indexed events")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	addr, err := crypto.ParseAddress(*addressFlag)
	if err != nil {
		return c.fail("address: %v", err)
	}
	api, err := c.client()
	if err != nil {
		return c.fail("%v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	view, err := api.PayRequest(ctx, addr)
	if err != nil {
		return c.fail("show: %v", err)
	}
	if !*withEvents {
		return c.printJSON(view)
	}
	evts, err := api.Events(ctx, addr, 0)
	if err != nil {
		return c.fail("events: %v", err)
	}
	return c.printJSON(map[string]interface{}{"payRequest": view, "events": evts})
}

func (c *cli) invoice(args []string) int {
	if len(args) == 0 {
		return c.fail("invoice requires encode or decode")
	}
	switch args[0] {
	case "encode":
		fs := c.flags("invoice encode")
		addressFlag := fs.String("address", "", "Pay request address")
		amount := fs.Uint64("amount", 0, "Requested amount in lamports")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		addr, err := crypto.ParseAddress(*addressFlag)
		if err != nil {
			return c.fail("address: %v", err)
		}
		inv, err := crypto.EncodeInvoice(crypto.Invoice{Address: addr, Amount: *amount})
		if err != nil {
			return c.fail("encode: %v", err)
		}
		fmt.Fprintln(c.stdout, inv)
		return 0
	case "decode":
		if len(args) < 2 {
			return c.fail("invoice decode requires an invoice")
		}
		inv, err := crypto.DecodeInvoice(args[1])
		if err != nil {
			return c.fail("decode: %v", err)
		}
		return c.printJSON(map[string]interface{}{
			"address": crypto.FormatAddress(inv.Address),
			"amount":  inv.Amount,
		})
	default:
		return c.fail("unknown invoice subcommand: %s", args[0])
	}
}
