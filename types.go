package main

import (
	"math/big"

	"ripeipsearch/record"
)

type Country struct {
	Code string `json:"code"`
	Name string `json:"name,omitempty"`
}

// ParsedDocument is the -details output for one inetnum/inet6num record.
type ParsedDocument struct {
	Networks     []string       `json:"networks"`
	NumAddresses *big.Int       `json:"num_addresses"`
	Countries    []Country      `json:"countries,omitempty"`
	Details      *record.Record `json:"details"`
}
