package main

import (
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

func printStruct(w io.Writer, format string, msg *structpb.Struct) error {
	opts := protojson.MarshalOptions{}
	if format == "text" {
		opts.Multiline = true
		opts.Indent = "  "
	}
	b, err := opts.Marshal(msg)
	if err != nil {
		return fmt.Errorf("render response: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
