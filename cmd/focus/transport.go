package main

import (
	"errors"

	"github.com/signalmesh/focus/internal/colibri"
	"github.com/signalmesh/focus/internal/config"
	"github.com/signalmesh/focus/internal/transport"
)

// errNoTransportAdapter is returned by both seam constructors below: the
// XMPP/MUC messaging substrate and the Colibri wire codec are external
// collaborators (spec.md §6 Non-goals) that a deployment supplies, not code
// this repository owns.
var errNoTransportAdapter = errors.New("cmd/focus: no transport adapter built into this binary; wire a substrate/colibri implementation into newSubstrate/newColibriTransport")

// newSubstrate is the seam a deployment replaces with a concrete XMPP/MUC
// connection satisfying transport.Substrate.
func newSubstrate(cfg *config.Config) (transport.Substrate, error) {
	return nil, errNoTransportAdapter
}

// newColibriTransport is the seam a deployment replaces with a concrete
// Colibri-speaking client satisfying colibri.Transport.
func newColibriTransport(cfg *config.Config) (colibri.Transport, error) {
	return nil, errNoTransportAdapter
}
