package main

import "time"

// Flag structs decouple cobra from command logic for testing.

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags select the daemon a remote command talks to.
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Insecure   bool
	CACert     string
}

type CreateFlags struct {
	APIFlags
	KeepAlive bool
}

type HeartbeatFlags struct {
	APIFlags
	ID string
}

type StatusFlags struct {
	APIFlags
	ID     string
	Active bool
}

type RemoveFlags struct {
	APIFlags
	ID string
}

type ServeFlags struct {
	ConfigPath string
}
