//go:build cgo || windows

package main

import (
	// Registers "winscard".
	_ "github.com/gregLibert/cardchannel/pkg/driver/winscard"
)
