package main

// Blank imports ensure backend init() registration runs for the CLI binary.
import (
	_ "github.com/alexisbeaulieu97/keyglow/internal/devices/mqttlight"
	_ "github.com/alexisbeaulieu97/keyglow/internal/devices/udpstrip"
	_ "github.com/alexisbeaulieu97/keyglow/internal/devices/virtual"
)
