// Package protocol defines the vendor-neutral command/reply data model shared
// by all flowchem device drivers.
//
// A Command is a semantic request (target address, operation mnemonic,
// optional value/argument, execute flag) that a vendor Codec turns into exact
// wire bytes. A Reply is the classified result of decoding a raw device
// response: acknowledged, rejected, busy, data-carrying, or malformed.
//
// Codecs are pure and stateless: the same Command always encodes to the same
// bytes, and Decode never performs I/O. All transport and retry behavior
// lives in the transport and engine packages.
package protocol
