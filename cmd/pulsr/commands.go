package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/loykin/pulsr/internal/process"
	"github.com/loykin/pulsr/pkg/client"
)

type command struct {
	out io.Writer
}

func newAPIClient(f APIFlags) *client.Client {
	cfg := client.DefaultConfig()
	if f.APIUrl != "" {
		cfg.BaseURL = f.APIUrl
	}
	if f.APITimeout > 0 {
		cfg.Timeout = f.APITimeout
	}
	cfg.Insecure = f.Insecure
	if f.CACert != "" {
		cfg.TLS = &client.TLSClientConfig{Enabled: true, CACert: f.CACert}
	}
	return client.New(cfg)
}

func requireID(id string) error {
	if id == "" {
		return errors.New("process id is required (--id)")
	}
	if !process.IsSafeID(id) {
		return fmt.Errorf("invalid process id %q: allowed [A-Za-z0-9._-] and no '..'", id)
	}
	return nil
}

func (c command) Create(ctx context.Context, f CreateFlags) error {
	resp, err := newAPIClient(f.APIFlags).CreateProcess(ctx, f.KeepAlive)
	if err != nil {
		return err
	}
	return c.printJSON(resp)
}

func (c command) Heartbeat(ctx context.Context, f HeartbeatFlags) error {
	if err := requireID(f.ID); err != nil {
		return err
	}
	if err := newAPIClient(f.APIFlags).Heartbeat(ctx, f.ID); err != nil {
		return err
	}
	_, err := fmt.Fprintf(c.out, "heartbeat sent for %s\n", f.ID)
	return err
}

func (c command) Status(ctx context.Context, f StatusFlags) error {
	cl := newAPIClient(f.APIFlags)
	if f.ID != "" {
		if err := requireID(f.ID); err != nil {
			return err
		}
		st, err := cl.Status(ctx, f.ID)
		if err != nil {
			if client.IsNotFound(err) {
				return fmt.Errorf("process %s not found", f.ID)
			}
			return err
		}
		return c.printJSON(st)
	}

	var (
		list []client.ProcessStatus
		err  error
	)
	if f.Active {
		list, err = cl.ActiveStatuses(ctx)
	} else {
		list, err = cl.Statuses(ctx)
	}
	if err != nil {
		return err
	}
	return c.printJSON(list)
}

func (c command) Remove(ctx context.Context, f RemoveFlags) error {
	if err := requireID(f.ID); err != nil {
		return err
	}
	if err := newAPIClient(f.APIFlags).Remove(ctx, f.ID); err != nil {
		return err
	}
	_, err := fmt.Fprintf(c.out, "process %s removed\n", f.ID)
	return err
}

func (c command) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
