package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/courierd/courier"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "courier",
		Usage: "a cli that submits emails to a courierd instance",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				EnvVars: []string{"COURIER_HOST"},
				Value:   "http://localhost:5777",
				Usage:   "base url of the courierd api",
			},
			&cli.StringFlag{
				Name:     "app",
				Required: true,
				Usage:    "application the email is sent on behalf of",
			},
			&cli.Int64Flag{
				Name:     "template",
				Required: true,
				Usage:    "id of the email template to render",
			},
			&cli.StringSliceFlag{
				Name:  "data",
				Usage: "template variable on the form key=value, repeatable",
			},
			&cli.StringFlag{
				Name:     "to",
				Required: true,
				Usage:    "recipient email address",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "recipient display name",
			},
			&cli.StringSliceFlag{
				Name:  "cc",
				Usage: "carbon copy email address, repeatable",
			},
			&cli.StringSliceFlag{
				Name:  "bcc",
				Usage: "blind carbon copy email address, repeatable",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "got err", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	data := map[string]any{}
	for _, kv := range c.StringSlice("data") {
		key, value, found := strings.Cut(kv, "=")
		if !found {
			return fmt.Errorf("data %q is not on the form key=value", kv)
		}
		data[key] = value
	}

	toRecipients := func(addresses []string) []courier.Recipient {
		var out []courier.Recipient
		for _, a := range addresses {
			out = append(out, courier.Recipient{Email: a})
		}
		return out
	}

	req := courier.SendRequest{
		App:           c.String("app"),
		TemplateID:    c.Int64("template"),
		TemplateData:  data,
		Recipient:     c.String("to"),
		RecipientName: c.String("name"),
		CC:            toRecipients(c.StringSlice("cc")),
		BCC:           toRecipients(c.StringSlice("bcc")),
	}

	client := courier.NewClient(c.String("host"))
	receipt, err := client.Send(c.Context, req)
	if err != nil {
		return err
	}

	fmt.Println("queued, message id:", receipt.MessageID)
	return nil
}
