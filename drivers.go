package main

import (
	// Registers "sim"; "pcsclite" is registered through env.go.
	_ "github.com/gregLibert/cardchannel/pkg/driver/sim"
)
