// Package datatypes implements the wire types exchanged between flowkit
// components.
//
// The encodings are byte compatible with the following protocol buffer
// definitions, so payloads produced by other runtimes can be decoded here:
//
//	message Strings      { repeated string value = 1; }
//	message StringsArray { repeated Strings value = 1; }
//	message StringsMap   { repeated string key = 1; repeated Strings value = 2; }
//	message Integers     { repeated int32 value = 1 [packed = true]; }
//	message IntegersMap  { repeated string key = 1; repeated Integers value = 2; }
//
// Encoding and decoding is done with protowire directly; no generated code
// is involved. Unknown fields are skipped on decode.
package datatypes
